package handler

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Settings struct {
	LogLevel          string   `envconfig:"LOG_LEVEL" default:"info"`
	TaskDefinitionArn string   `envconfig:"TASK_DEF_ARN"`
	SubnetIds         []string `envconfig:"SUBNET_IDS"`
	SecurityGroup     string   `envconfig:"SECURITY_GROUP"`
	Cluster           string   `envconfig:"CLUSTER_ARN"`
	ContainerName     string   `envconfig:"CONTAINER_NAME" default:"upload-cdms"`
}

var settings Settings

func init() {
	if err := envconfig.Process("", &settings); err != nil {
		log.Fatalf("failed to load environment variables: %v", err)
	}
	log.SetFormatter(&log.JSONFormatter{})
	if ll, err := log.ParseLevel(settings.LogLevel); err == nil {
		log.SetLevel(ll)
	}
}

// ECSAPI is the part of the ECS client the trigger uses.
type ECSAPI interface {
	ListTasks(ctx context.Context, params *ecs.ListTasksInput, optFns ...func(*ecs.Options)) (*ecs.ListTasksOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// UploadEvent selects what the upload task processes. Empty fields fall back
// to the task definition's environment.
type UploadEvent struct {
	Library  string `json:"library"`
	Template string `json:"template"`
	Manifold string `json:"manifold"`
	JSONPath string `json:"json_path"`
	Release  string `json:"release"`
	Version  string `json:"version"`
	Samples  int    `json:"samples"`
	Write    bool   `json:"write"`
	Rewrite  bool   `json:"rewrite"`
	Check    bool   `json:"check"`
}

type UploadTriggerResponse struct {
	Started bool   `json:"started"`
	TaskArn string `json:"task_arn,omitempty"`
}

var activeStatuses = []string{"RUNNING", "PROVISIONING", "PENDING", "ACTIVATING"}

var newClient = func(ctx context.Context) (ECSAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ecs.NewFromConfig(cfg), nil
}

// UploadTriggerHandler starts the upload-cdms fargate task if one is not running.
func UploadTriggerHandler(ctx context.Context, event UploadEvent) (*UploadTriggerResponse, error) {
	if event.Library == "" {
		return nil, errors.New("library is required")
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}
	return trigger(ctx, client, event)
}

func trigger(ctx context.Context, client ECSAPI, event UploadEvent) (*UploadTriggerResponse, error) {
	logger := log.WithFields(log.Fields{"library": event.Library, "cluster": settings.Cluster})

	running, err := taskRunning(ctx, client)
	if err != nil {
		return nil, err
	}
	if running {
		logger.Info("Upload Fargate Task already running --> returning.")
		return &UploadTriggerResponse{}, nil
	}

	logger.Info("Initiating new Upload CDMs Fargate Task.")
	out, err := client.RunTask(ctx, &ecs.RunTaskInput{
		TaskDefinition: aws.String(settings.TaskDefinitionArn),
		Cluster:        aws.String(settings.Cluster),
		NetworkConfiguration: &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				Subnets:        settings.SubnetIds,
				SecurityGroups: []string{settings.SecurityGroup},
				AssignPublicIp: types.AssignPublicIpEnabled,
			},
		},
		Overrides: &types.TaskOverride{
			ContainerOverrides: []types.ContainerOverride{{
				Name:        aws.String(settings.ContainerName),
				Environment: overrides(event),
			}},
		},
		LaunchType: types.LaunchTypeFargate,
	})
	if err != nil {
		return nil, err
	}
	response := &UploadTriggerResponse{Started: true}
	if len(out.Tasks) > 0 {
		response.TaskArn = aws.ToString(out.Tasks[0].TaskArn)
	}
	return response, nil
}

func taskRunning(ctx context.Context, client ECSAPI) (bool, error) {
	result, err := client.ListTasks(ctx, &ecs.ListTasksInput{Cluster: aws.String(settings.Cluster)})
	if err != nil {
		return false, err
	}
	if len(result.TaskArns) == 0 {
		return false, nil
	}
	tasks, err := client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Tasks:   result.TaskArns,
		Cluster: aws.String(settings.Cluster),
	})
	if err != nil {
		return false, err
	}
	for _, t := range tasks.Tasks {
		status := aws.ToString(t.LastStatus)
		log.Debugf("Task status: %s", status)
		if slices.Contains(activeStatuses, status) {
			return true, nil
		}
	}
	return false, nil
}

func overrides(event UploadEvent) []types.KeyValuePair {
	var env []types.KeyValuePair
	add := func(name, value string) {
		if value != "" {
			env = append(env, types.KeyValuePair{Name: aws.String(name), Value: aws.String(value)})
		}
	}
	add("LIBRARY", event.Library)
	add("TEMPLATE", event.Template)
	add("MANIFOLD", event.Manifold)
	add("JSON_PATH", event.JSONPath)
	add("RELEASE", event.Release)
	add("VERSION", event.Version)
	if event.Samples > 0 {
		add("SAMPLES", strconv.Itoa(event.Samples))
	}
	if event.Write {
		add("WRITE", "true")
	}
	if event.Rewrite {
		add("REWRITE", "true")
	}
	if event.Check {
		add("CHECK", "true")
	}
	return env
}
