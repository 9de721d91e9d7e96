package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/dydb"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/manifest"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/metadata"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/library"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/runlog"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/sagedb"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/upload"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// main entry method for the task.
func main() {
	os.Exit(run())
}

func configureLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(ll)
	}
}

func run() int {
	settings, err := LoadSettings()
	if err != nil {
		log.Error(err)
		return 1
	}
	configureLogging(settings.LogLevel)
	ctx := context.Background()
	started := time.Now()
	calls := metadata.NewCallCounter()

	operator, err := metadata.CheckToken(settings.JacsJWT, started)
	if err != nil {
		log.Error(err)
		return 1
	}
	log.WithFields(log.Fields{
		"operator":   operator.FullName,
		"expires_at": operator.ExpiresAt,
	}).Info("JACS token accepted")

	registry, err := metadata.NewConfigService(settings.ConfigURL, settings.CallTimeout, calls).Libraries(ctx)
	if err != nil {
		log.Error(err)
		return 1
	}
	lib, err := settings.ResolveLibrary(registry)
	if err != nil {
		log.Error(err)
		return 1
	}

	var sage *sagedb.Manager
	if settings.SageDSN != "" {
		if sage, err = sagedb.New(sagedb.NewOpener(settings.SageDSN, sagedb.DefaultLifetime), true); err != nil {
			log.Error("cannot connect to SAGE: ", err)
			return 1
		}
		defer sage.Close()
	}
	jacs := metadata.NewJACS(settings.JacsURL, settings.JacsV2URL, settings.JacsJWT, settings.CallTimeout, calls)
	store := NewUploadCdmsStore(jacs, sage, calls)

	drivers, releases, err := lineMappings(ctx, store, lib)
	if err != nil {
		log.Error(err)
		return 1
	}
	records, method, err := loadSamples(ctx, settings, jacs)
	if err != nil {
		log.Error(err)
		return 1
	}
	log.WithFields(log.Fields{"library": lib.Key, "samples": len(records), "method": method}).Info("samples loaded")

	cdmBucket, thumbnailBucket := settings.Buckets()
	blobs, libraries, err := newBackends(ctx, settings, cdmBucket)
	if err != nil {
		log.Error(err)
		return 1
	}

	errLog, err := runlog.Create(settings.OutputDir, "upload_cdms_errors", started)
	if err != nil {
		log.Error(err)
		return 1
	}
	transfers, err := runlog.Create(settings.OutputDir, "upload_cdms_s3cp", started)
	if err != nil {
		log.Error(err)
		return 1
	}
	rc := upload.NewRunContext(errLog, transfers)

	developer := settings.Developer
	if developer == "" {
		developer = operator.FullName
	}
	namer := naming.New(lib, naming.DriverMap(drivers), settings.policy, settings.Write)
	orchestrator := upload.New(namer, blobs, store, libraries, rc, upload.Config{
		Bucket:          cdmBucket,
		ThumbnailBucket: thumbnailBucket,
		BaseURL:         settings.BaseAWSURL,
		Manifold:        settings.manifold.Name,
		Tagging:         awsutil.Tagging(settings.manifold.Name, developer, settings.TagVersion),
		Release:         settings.Release,
		Releases:        releases,
		Write:           settings.Write,
		Rewrite:         settings.Rewrite,
		Check:           settings.Check,
		Samples:         settings.Samples,
		CallTimeout:     settings.CallTimeout,
		Source:          manifest.Source(settings.JSONPath),
		Method:          method,
		Operator:        operator.FullName,
		LibraryTable:    settings.LibraryTable,
	})

	states, runErr := orchestrator.Run(ctx, records)
	if runErr == nil {
		runErr = orchestrator.Finish(ctx, time.Now(), uuid.NewString())
	}
	if err := rc.Close(); err != nil {
		log.Error(err)
	}

	if err := rc.Tally.Print(os.Stdout); err != nil {
		log.Warn(err)
	}
	printStates(states)
	printCalls(calls.Snapshot())
	if settings.PushgatewayURL != "" {
		labels := map[string]string{"library": lib.Key, "manifold": settings.manifold.Name}
		if err := rc.Tally.Push(ctx, settings.PushgatewayURL, "upload_cdms", labels); err != nil {
			log.Warn(err)
		}
	}

	if runErr != nil {
		log.WithField("fatal", naming.IsFatal(runErr)).Error(runErr)
		return 1
	}
	return 0
}

// lineMappings loads the SAGE driver mapping for light libraries and, for
// publish-flagged ones, the ALPS releases.
func lineMappings(ctx context.Context, store *UploadCdmsStore, lib naming.Library) (map[string]string, map[string][]string, error) {
	if lib.EM() {
		return nil, nil, nil
	}
	drivers, err := store.Drivers(ctx)
	if err != nil {
		return nil, nil, naming.Fatal(fmt.Errorf("error loading drivers: %w", err))
	}
	if !lib.RequiresPublishFlag() {
		return drivers, nil, nil
	}
	releases, err := store.Releases(ctx)
	if err != nil {
		return nil, nil, naming.Fatal(fmt.Errorf("error loading releases: %w", err))
	}
	return drivers, releases, nil
}

func loadSamples(ctx context.Context, settings *Settings, jacs *metadata.JACS) ([]sample.Record, library.Method, error) {
	if settings.JSONPath != "" {
		records, err := manifest.LoadFile(settings.JSONPath)
		return records, library.MethodFile, err
	}
	records, err := jacs.ColorDepthMIPs(ctx, settings.Library, settings.Template)
	return records, library.MethodAPI, err
}

// newBackends opens the blob store and, on AWS, the DynamoDB library table.
func newBackends(ctx context.Context, settings *Settings, bucket string) (blobstore.Store, upload.LibraryWriter, error) {
	if settings.BlobDriver == BlobDriverMinio {
		store, err := blobstore.NewMinioStore(settings.MinioEndpoint, settings.MinioAccessKey, settings.MinioSecretKey, settings.MinioSecure, bucket)
		return store, nil, err
	}
	cfg, err := awsutil.LoadConfig(ctx, settings.manifold, settings.RoleArn, settings.Region)
	if err != nil {
		return nil, nil, err
	}
	return blobstore.NewS3Store(s3.NewFromConfig(cfg), bucket), dydb.New(dynamodb.NewFromConfig(cfg)), nil
}

func printStates(states map[upload.State]int) {
	keys := make([]upload.State, 0, len(states))
	for s := range states {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	fmt.Println("Terminal states")
	for _, s := range keys {
		fmt.Printf("  %-20s %d\n", s.String()+":", states[s])
	}
}

func printCalls(calls map[string]int) {
	servers := make([]string, 0, len(calls))
	for s := range calls {
		servers = append(servers, s)
	}
	sort.Strings(servers)
	fmt.Println("Server calls (excluding AWS)")
	for _, s := range servers {
		fmt.Printf("  %-20s %d\n", s+":", calls[s])
	}
}
