// Where: internal/deploy/credentials.go
// What: Credential preflight against the cloud before running terraform.
// Why: A bad key should fail in seconds at environment setup, not mid-plan.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// VerifyAWSCredentials resolves the caller identity for a static key pair.
// It returns the account ARN on success.
func VerifyAWSCredentials(ctx context.Context, creds Credentials) (string, error) {
	if creds.AWSAccessKeyID == "" || creds.AWSSecretAccessKey == "" {
		return "", fmt.Errorf("verify credentials: aws key pair is not configured")
	}
	region := creds.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AWSAccessKeyID, creds.AWSSecretAccessKey, "")),
	)
	if err != nil {
		return "", fmt.Errorf("verify credentials: %w", err)
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("verify credentials: %w", err)
	}
	return aws.ToString(out.Arn), nil
}
