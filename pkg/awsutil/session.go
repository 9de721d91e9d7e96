package awsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	log "github.com/sirupsen/logrus"
)

// SessionDuration is how long assumed-role credentials stay valid. Long
// uploads outlive the one hour default.
const SessionDuration = 12 * time.Hour

const roleSessionName = "AssumeRoleSession1"

// LoadConfig returns the AWS configuration for manifold. Manifolds that assume
// roles swap the default credentials for the role's.
func LoadConfig(ctx context.Context, manifold Manifold, roleArn string, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error loading aws config: %w", err)
	}
	if !manifold.AssumesRole() || roleArn == "" {
		return cfg, nil
	}

	log.WithFields(log.Fields{
		"manifold": manifold.Name,
		"role_arn": roleArn,
	}).Info("assuming role for S3 access")

	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleArn, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = roleSessionName
		o.Duration = SessionDuration
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}
