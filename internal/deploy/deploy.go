// Where: internal/deploy/deploy.go
// What: Deployment and environment records plus the status machine.
// Why: A deployment is one plan/apply lifecycle against one environment.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsloom/iacpilot/internal/resource"
)

// Status is the deployment state machine:
// pending -> planning -> {plan_ready | plan_failed};
// plan_ready -> applying -> {apply_success | apply_failed};
// apply_success -> destroying -> destroyed.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPlanning     Status = "planning"
	StatusPlanReady    Status = "plan_ready"
	StatusPlanFailed   Status = "plan_failed"
	StatusApplying     Status = "applying"
	StatusApplySuccess Status = "apply_success"
	StatusApplyFailed  Status = "apply_failed"
	StatusDestroying   Status = "destroying"
	StatusDestroyed    Status = "destroyed"
)

// Terminal reports whether a status ends the lifecycle. Terminal deployments
// are immutable except for destroy on apply_success.
func (s Status) Terminal() bool {
	switch s {
	case StatusPlanFailed, StatusApplySuccess, StatusApplyFailed, StatusDestroyed:
		return true
	}
	return false
}

// PlanSummary is the +/~/- resource count from terraform plan.
type PlanSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// Deployment tracks one deployment attempt and its results.
type Deployment struct {
	ID            int64             `json:"id"`
	DeploymentID  string            `json:"deployment_id"`
	SessionID     string            `json:"session_id"`
	EnvironmentID int64             `json:"environment_id"`
	Status        Status            `json:"status"`
	Files         map[string]string `json:"terraform_code"`

	PlanOutput  string       `json:"plan_output,omitempty"`
	PlanSummary *PlanSummary `json:"plan_summary,omitempty"`

	ApplyOutput      string         `json:"apply_output,omitempty"`
	TerraformOutputs map[string]any `json:"terraform_outputs,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	WorkDir      string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Environment is a named credential target. Credentials are stored encrypted
// and decrypted only into a spawned child's environment.
type Environment struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Platform          resource.Platform `json:"cloud_platform"`
	CredentialsCipher string            `json:"-"`
	IsDefault         bool              `json:"is_default"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Credentials is the plain-text credential set; it never touches disk
// unencrypted.
type Credentials struct {
	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty"`
	AWSRegion          string `json:"aws_region,omitempty"`

	AzureSubscriptionID string `json:"azure_subscription_id,omitempty"`
	AzureTenantID       string `json:"azure_tenant_id,omitempty"`
	AzureClientID       string `json:"azure_client_id,omitempty"`
	AzureClientSecret   string `json:"azure_client_secret,omitempty"`
}

// Marshal serializes credentials for sealing.
func (c Credentials) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCredentials decodes an opened credential blob.
func UnmarshalCredentials(blob []byte) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(blob, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return c, nil
}

// Env renders the credential variables for a child process, per platform.
func (c Credentials) Env(platform resource.Platform) map[string]string {
	env := map[string]string{}
	switch platform {
	case resource.PlatformAWS:
		if c.AWSAccessKeyID != "" {
			env["AWS_ACCESS_KEY_ID"] = c.AWSAccessKeyID
		}
		if c.AWSSecretAccessKey != "" {
			env["AWS_SECRET_ACCESS_KEY"] = c.AWSSecretAccessKey
		}
		if c.AWSRegion != "" {
			env["AWS_DEFAULT_REGION"] = c.AWSRegion
		}
	case resource.PlatformAzure:
		if c.AzureSubscriptionID != "" {
			env["ARM_SUBSCRIPTION_ID"] = c.AzureSubscriptionID
			env["TF_VAR_azure_subscription_id"] = c.AzureSubscriptionID
		}
		if c.AzureTenantID != "" {
			env["ARM_TENANT_ID"] = c.AzureTenantID
		}
		if c.AzureClientID != "" {
			env["ARM_CLIENT_ID"] = c.AzureClientID
		}
		if c.AzureClientSecret != "" {
			env["ARM_CLIENT_SECRET"] = c.AzureClientSecret
		}
	}
	return env
}

// Store is the persistence surface the executor needs.
type Store interface {
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error)
	UpdateDeployment(ctx context.Context, d *Deployment) error
	GetEnvironment(ctx context.Context, id int64) (*Environment, error)
}
