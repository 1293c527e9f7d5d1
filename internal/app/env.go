// Where: internal/app/env.go
// What: Deployment environment commands.
// Why: Named credential targets are sealed here and only ever opened into a
// terraform child process.
package app

import (
	"context"
	"fmt"

	"github.com/opsloom/iacpilot/internal/deploy"
	"github.com/opsloom/iacpilot/internal/resource"
)

// EnvCmd groups the deployment environment subcommands.
type EnvCmd struct {
	List   EnvListCmd   `cmd:"" help:"List environments"`
	Add    EnvAddCmd    `cmd:"" help:"Add an environment with cloud credentials"`
	Verify EnvVerifyCmd `cmd:"" help:"Verify an environment's credentials against the cloud"`
	Remove EnvRemoveCmd `cmd:"" help:"Remove an environment"`
}

type (
	// EnvListCmd lists environments; credentials stay sealed.
	EnvListCmd struct{}
	// EnvAddCmd creates an environment. Credential flags read from the
	// command line; values are sealed before they reach the store.
	EnvAddCmd struct {
		Name        string `arg:"" help:"Environment name (unique)"`
		Platform    string `arg:"" enum:"aws,azure" help:"Cloud platform"`
		Description string `help:"Free-form description"`
		Default     bool   `help:"Mark as the default environment"`

		AWSAccessKeyID     string `name:"aws-access-key-id" env:"AWS_ACCESS_KEY_ID" help:"AWS access key id"`
		AWSSecretAccessKey string `name:"aws-secret-access-key" env:"AWS_SECRET_ACCESS_KEY" help:"AWS secret access key"`
		AWSRegion          string `name:"aws-region" env:"AWS_DEFAULT_REGION" help:"AWS region"`

		AzureSubscriptionID string `name:"azure-subscription-id" env:"ARM_SUBSCRIPTION_ID" help:"Azure subscription id"`
		AzureTenantID       string `name:"azure-tenant-id" env:"ARM_TENANT_ID" help:"Azure tenant id"`
		AzureClientID       string `name:"azure-client-id" env:"ARM_CLIENT_ID" help:"Azure client id"`
		AzureClientSecret   string `name:"azure-client-secret" env:"ARM_CLIENT_SECRET" help:"Azure client secret"`
	}
	// EnvVerifyCmd resolves the stored credentials against the cloud.
	EnvVerifyCmd struct {
		Name string `arg:"" help:"Environment name"`
	}
	// EnvRemoveCmd deletes an environment.
	EnvRemoveCmd struct {
		ID int64 `arg:"" help:"Environment id"`
	}
)

// Run executes the env list command.
func (EnvListCmd) Run(deps *Dependencies) error {
	environments, err := deps.Store.ListEnvironments(context.Background())
	if err != nil {
		return fmt.Errorf("env list: %w", err)
	}

	deps.Console.Header("🌐", "Environments")
	if len(environments) == 0 {
		deps.Console.ItemPlain("no environments defined")
		return nil
	}
	for _, env := range environments {
		marker := ""
		if env.IsDefault {
			marker = " (default)"
		}
		deps.Console.Item(fmt.Sprintf("#%d %s", env.ID, env.Name), string(env.Platform)+marker)
	}
	return nil
}

// Run executes the env add command.
func (c EnvAddCmd) Run(deps *Dependencies) error {
	if deps.Box == nil {
		return fmt.Errorf("env add: encryption key is not configured (set IACPILOT_ENCRYPTION_KEY)")
	}

	creds := deploy.Credentials{
		AWSAccessKeyID:      c.AWSAccessKeyID,
		AWSSecretAccessKey:  c.AWSSecretAccessKey,
		AWSRegion:           c.AWSRegion,
		AzureSubscriptionID: c.AzureSubscriptionID,
		AzureTenantID:       c.AzureTenantID,
		AzureClientID:       c.AzureClientID,
		AzureClientSecret:   c.AzureClientSecret,
	}
	switch resource.Platform(c.Platform) {
	case resource.PlatformAWS:
		if creds.AWSAccessKeyID == "" || creds.AWSSecretAccessKey == "" {
			return fmt.Errorf("env add: aws environments need --aws-access-key-id and --aws-secret-access-key")
		}
	case resource.PlatformAzure:
		if creds.AzureSubscriptionID == "" || creds.AzureClientID == "" || creds.AzureClientSecret == "" {
			return fmt.Errorf("env add: azure environments need subscription, client id, and client secret")
		}
	}

	blob, err := creds.Marshal()
	if err != nil {
		return fmt.Errorf("env add: %w", err)
	}
	cipher, err := deps.Box.Seal(blob)
	if err != nil {
		return fmt.Errorf("env add: %w", err)
	}

	env := deploy.Environment{
		Name:              c.Name,
		Description:       c.Description,
		Platform:          resource.Platform(c.Platform),
		CredentialsCipher: cipher,
		IsDefault:         c.Default,
	}
	if err := deps.Store.CreateEnvironment(context.Background(), &env); err != nil {
		return fmt.Errorf("env add: %w", err)
	}

	deps.Console.Success(fmt.Sprintf("environment #%d %q created", env.ID, env.Name))
	return nil
}

// Run executes the env verify command.
func (c EnvVerifyCmd) Run(deps *Dependencies) error {
	if deps.Box == nil {
		return fmt.Errorf("env verify: encryption key is not configured")
	}
	ctx := context.Background()
	env, err := deps.Store.GetEnvironmentByName(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("env verify: %w", err)
	}
	blob, err := deps.Box.Open(env.CredentialsCipher)
	if err != nil {
		return fmt.Errorf("env verify: %w", err)
	}
	creds, err := deploy.UnmarshalCredentials(blob)
	if err != nil {
		return fmt.Errorf("env verify: %w", err)
	}

	switch env.Platform {
	case resource.PlatformAWS:
		arn, err := deploy.VerifyAWSCredentials(ctx, creds)
		if err != nil {
			return fmt.Errorf("env verify: %w", err)
		}
		deps.Console.Success("credentials valid: " + arn)
	default:
		// Azure credentials are validated by terraform at plan time.
		deps.Console.Info("no preflight check for " + string(env.Platform) + "; credentials will be validated at plan time")
	}
	return nil
}

// Run executes the env remove command.
func (c EnvRemoveCmd) Run(deps *Dependencies) error {
	if err := deps.Store.DeleteEnvironment(context.Background(), c.ID); err != nil {
		return fmt.Errorf("env remove: %w", err)
	}
	deps.Console.Success(fmt.Sprintf("environment #%d removed", c.ID))
	return nil
}
