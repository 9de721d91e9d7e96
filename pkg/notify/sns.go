package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	log "github.com/sirupsen/logrus"
)

// SnsAPI is the subset of the SNS client the Publisher uses.
type SnsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher announces finished denormalization passes on an SNS topic.
// A Publisher without a topic is a no-op.
type Publisher struct {
	client SnsAPI
	topic  string
}

func NewPublisher(client SnsAPI, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// LibraryDenormalized is the message body sent after a denormalization pass.
type LibraryDenormalized struct {
	Bucket  string               `json:"bucket"`
	Summary denormalized.Summary `json:"summary"`
}

func (p *Publisher) PublishDenormalized(ctx context.Context, msg LibraryDenormalized) error {
	if p == nil || p.topic == "" {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topic),
		Message:  aws.String(string(body)),
		Subject:  aws.String(fmt.Sprintf("Denormalized %s", msg.Summary.KeyName)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"bucket": {DataType: aws.String("String"), StringValue: aws.String(msg.Bucket)},
		},
	})
	if err != nil {
		log.WithFields(log.Fields{"topic": p.topic, "keyname": msg.Summary.KeyName}).Error("error publishing to SNS: ", err)
		return err
	}
	return nil
}
