package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	BlobDriverS3    = "s3"
	BlobDriverMinio = "minio"
)

// Settings configure one upload run.
type Settings struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Library  string `envconfig:"LIBRARY" required:"true"`
	Template string `envconfig:"TEMPLATE" default:"JRC2018_Unisex_20x_HR"`
	Manifold string `envconfig:"MANIFOLD" default:"prod"`
	// JSONPath is the source manifest. Empty means samples come from JACS.
	JSONPath string `envconfig:"JSON_PATH"`
	Write    bool   `envconfig:"WRITE"`
	Rewrite  bool   `envconfig:"REWRITE"`
	Samples  int    `envconfig:"SAMPLES"`
	Release  string `envconfig:"RELEASE"`
	Version  string `envconfig:"VERSION"`

	// Check skips API sourced samples whose published thumbnail is already served.
	Check bool `envconfig:"CHECK"`

	// AllowedDrivers, when set, rejects light samples resolving to any other driver.
	AllowedDrivers []string `envconfig:"ALLOWED_DRIVERS"`

	CDMBucket       string `envconfig:"CDM_BUCKET" default:"janelia-flylight-color-depth"`
	ThumbnailBucket string `envconfig:"THUMBNAIL_BUCKET" default:"janelia-flylight-color-depth-thumbnails"`
	BaseAWSURL      string `envconfig:"BASE_AWS_URL" default:"https://s3.amazonaws.com"`
	RoleArn         string `envconfig:"ROLE_ARN"`
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	LibraryTable    string `envconfig:"LIBRARY_TABLE" default:"cdm_library"`
	Developer       string `envconfig:"DEVELOPER"`
	TagVersion      string `envconfig:"TAG_VERSION" default:"2.0.0"`

	ConfigURL string `envconfig:"CONFIG_URL" default:"http://config.int.janelia.org/"`
	JacsURL   string `envconfig:"JACS_URL" required:"true"`
	JacsV2URL string `envconfig:"JACS_V2_URL" required:"true"`
	JacsJWT   string `envconfig:"JACS_JWT"`
	SageDSN   string `envconfig:"SAGE_DSN"`

	OutputDir                   string        `envconfig:"OUTPUT_DIR" default:"."`
	MissingDriverPolicy         string        `envconfig:"MISSING_DRIVER_POLICY" default:"skip"`
	MissingPublishingNamePolicy string        `envconfig:"MISSING_PUBLISHING_NAME_POLICY" default:"skip"`
	PushgatewayURL              string        `envconfig:"PUSHGATEWAY_URL"`
	CallTimeout                 time.Duration `envconfig:"CALL_TIMEOUT" default:"60s"`

	BlobDriver     string `envconfig:"BLOB_DRIVER" default:"s3"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioSecure    bool   `envconfig:"MINIO_SECURE"`

	manifold awsutil.Manifold
	policy   naming.Policy
}

// LoadSettings reads the environment, plus a .env file in development.
func LoadSettings() (*Settings, error) {
	if strings.EqualFold(os.Getenv("ENVIRONMENT"), "development") {
		if err := godotenv.Load(); err != nil {
			log.Info("no .env file found")
		}
	}
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	var problems []string
	manifold, err := awsutil.GetManifold(s.Manifold)
	if err != nil {
		problems = append(problems, err.Error())
	}
	s.manifold = manifold

	if s.policy.MissingDriver, err = naming.ParseSeverity(s.MissingDriverPolicy); err != nil {
		problems = append(problems, "MISSING_DRIVER_POLICY: "+err.Error())
	}
	if s.policy.MissingPublishingName, err = naming.ParseSeverity(s.MissingPublishingNamePolicy); err != nil {
		problems = append(problems, "MISSING_PUBLISHING_NAME_POLICY: "+err.Error())
	}
	switch s.BlobDriver {
	case BlobDriverS3:
	case BlobDriverMinio:
		if s.MinioEndpoint == "" {
			problems = append(problems, "MINIO_ENDPOINT is required with BLOB_DRIVER=minio")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown BLOB_DRIVER %q", s.BlobDriver))
	}
	if s.Samples < 0 {
		problems = append(problems, "SAMPLES must not be negative")
	}
	if s.CallTimeout <= 0 {
		problems = append(problems, "CALL_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return naming.Fatal(fmt.Errorf("environment validation failed: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// ResolveLibrary looks LIBRARY up in the config service registry and applies
// the driver allow-list.
func (s *Settings) ResolveLibrary(registry map[string]string) (naming.Library, error) {
	lib, err := naming.NewLibrary(s.Library, registry, s.Version)
	if err != nil {
		return lib, err
	}
	for _, d := range s.AllowedDrivers {
		if d = strings.TrimSpace(d); d != "" {
			lib.AllowedDrivers = append(lib.AllowedDrivers, d)
		}
	}
	return lib, nil
}

// Buckets returns the CDM and thumbnail buckets for the run's manifold.
func (s *Settings) Buckets() (cdm, thumbnail string) {
	return s.manifold.Bucket(s.CDMBucket), s.manifold.Bucket(s.ThumbnailBucket)
}
