package dydb

import (
	"context"
	"fmt"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/library"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	log "github.com/sirupsen/logrus"
)

// DefaultSummaryTable holds one denormalization summary per template/library.
const DefaultSummaryTable = "cdm_denormalized"

// DB is the subset of the DynamoDB client used by Queries.
type DB interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Queries writes discovery records to DynamoDB.
type Queries struct {
	db DB
}

func New(db DB) *Queries {
	return &Queries{db: db}
}

// PutDenormalizedSummary replaces the summary stored under s.KeyName.
func (q *Queries) PutDenormalizedSummary(ctx context.Context, table string, s denormalized.Summary) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("error marshalling summary %s: %w", s.KeyName, err)
	}
	_, err = q.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		log.WithFields(log.Fields{"keyname": s.KeyName, "table": table}).Error("unable to write summary: ", err)
		return err
	}
	return nil
}

// GetDenormalizedSummary reads a summary back; it returns nil if none exists.
func (q *Queries) GetDenormalizedSummary(ctx context.Context, table string, keyName string) (*denormalized.Summary, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"keyname": keyName})
	if err != nil {
		return nil, err
	}
	out, err := q.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var s denormalized.Summary
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutLibraryRecord stores the write-back record of an upload run.
func (q *Queries) PutLibraryRecord(ctx context.Context, table string, r library.Record) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("error marshalling library record %s: %w", r.Library, err)
	}
	if _, err := q.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}); err != nil {
		log.WithFields(log.Fields{"library": r.Library, "table": table}).Error("unable to write library record: ", err)
		return err
	}
	return nil
}
