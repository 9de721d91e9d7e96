package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/denormalize"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/dydb"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/notify"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Settings struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	CDMBucket      string `envconfig:"CDM_BUCKET" default:"janelia-flylight-color-depth"`
	RoleArn        string `envconfig:"ROLE_ARN"`
	Region         string `envconfig:"AWS_REGION" default:"us-east-1"`
	SummaryTable   string `envconfig:"SUMMARY_TABLE" default:"cdm_denormalized"`
	SnsTopic       string `envconfig:"SNS_TOPIC"`
	OrderDir       string `envconfig:"ORDER_DIR" default:"/tmp"`
	DistributeMode string `envconfig:"DISTRIBUTE_MODE" default:"order"`
	TestMode       bool   `envconfig:"TEST_MODE"`
	Developer      string `envconfig:"DEVELOPER" default:"neuronbridge"`
	TagVersion     string `envconfig:"TAG_VERSION" default:"2.0.0"`
}

var settings Settings

// init runs on cold start of lambda and reads the function settings.
func init() {
	if err := envconfig.Process("", &settings); err != nil {
		log.Fatalf("failed to load environment variables: %v", err)
	}
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(settings.LogLevel)
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(ll)
	}
}

// DenormalizeEvent names the template/library prefix to denormalize.
type DenormalizeEvent struct {
	Template string `json:"template"`
	Library  string `json:"library"`
	Manifold string `json:"manifold"`
}

type DenormalizeResponse struct {
	KeyName     string            `json:"keyname"`
	Bucket      string            `json:"bucket"`
	Count       int               `json:"count"`
	Subprefixes map[string]int    `json:"subprefixes"`
	OrderFiles  map[string]string `json:"order_files,omitempty"`
	PutErrors   int               `json:"put_errors"`
}

// Backends are the external collaborators of one invocation.
type Backends struct {
	Store     blobstore.Store
	Summaries denormalize.SummaryWriter
	Notifier  denormalize.Notifier
}

// BackendFactory opens the backends for bucket in manifold.
type BackendFactory func(ctx context.Context, manifold awsutil.Manifold, bucket string) (*Backends, error)

var newBackends BackendFactory = awsBackends

func awsBackends(ctx context.Context, manifold awsutil.Manifold, bucket string) (*Backends, error) {
	cfg, err := awsutil.LoadConfig(ctx, manifold, settings.RoleArn, settings.Region)
	if err != nil {
		return nil, err
	}
	return &Backends{
		Store:     blobstore.NewS3Store(s3.NewFromConfig(cfg), bucket),
		Summaries: dydb.New(dynamodb.NewFromConfig(cfg)),
		Notifier:  notify.NewPublisher(sns.NewFromConfig(cfg), settings.SnsTopic),
	}, nil
}

// DenormalizeHandler rebuilds the key lists and count files of one library.
func DenormalizeHandler(ctx context.Context, event DenormalizeEvent) (*DenormalizeResponse, error) {
	logger := log.WithFields(log.Fields{
		"template": event.Template,
		"library":  event.Library,
		"manifold": event.Manifold,
	})
	if event.Template == "" || event.Library == "" {
		return nil, errors.New("template and library are required")
	}
	manifoldName := event.Manifold
	if manifoldName == "" {
		manifoldName = awsutil.Prod
	}
	manifold, err := awsutil.GetManifold(manifoldName)
	if err != nil {
		return nil, err
	}
	mode := denormalize.Mode(settings.DistributeMode)
	if mode != denormalize.ModeOrder && mode != denormalize.ModeCopy {
		return nil, fmt.Errorf("unknown DISTRIBUTE_MODE %q", settings.DistributeMode)
	}

	bucket := manifold.Bucket(settings.CDMBucket)
	backends, err := newBackends(ctx, manifold, bucket)
	if err != nil {
		return nil, err
	}
	logger.WithField("bucket", bucket).Info("Denormalizer called.")

	d := denormalize.New(backends.Store, backends.Summaries, backends.Notifier, denormalize.Config{
		Template:     event.Template,
		Library:      event.Library,
		SummaryTable: settings.SummaryTable,
		Tagging:      awsutil.Tagging(manifold.Name, settings.Developer, settings.TagVersion),
		Mode:         mode,
		OrderDir:     settings.OrderDir,
		Test:         settings.TestMode,
	})
	result, err := d.Run(ctx)
	if err != nil {
		logger.Error("denormalization failed: ", err)
		return nil, err
	}

	response := &DenormalizeResponse{
		KeyName:     result.Summary.KeyName,
		Bucket:      bucket,
		Count:       result.Summary.Count,
		Subprefixes: map[string]int{},
		OrderFiles:  map[string]string{},
		PutErrors:   result.PutErrors,
	}
	for which, sp := range result.Summary.Subprefixes {
		response.Subprefixes[which] = sp.Count
	}
	for which, m := range result.Manifests {
		if m.OrderFile != "" {
			response.OrderFiles[which] = m.OrderFile
		}
	}
	return response, nil
}
