// Where: internal/store/store_test.go
// What: Round-trip tests against an in-memory sqlite database.
// Why: Every interface the engine and executor rely on is exercised here.
package store

import (
	"context"
	"errors"
	"testing"

	"github.com/opsloom/iacpilot/internal/deploy"
	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/resource"
	"github.com/opsloom/iacpilot/internal/workflow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if st, err := s.LoadState(ctx, "missing"); err != nil || st != nil {
		t.Fatalf("missing session must load as nil, got %v / %v", st, err)
	}

	state := workflow.NewState("sess-1")
	state.AppendUser("create a vm")
	state.Resources = []resource.Resource{{
		Type: "azure_vm", Name: "app-vm",
		Properties: map[string]any{"Location": "eastus", "Tags": map[string]any{"Project": "X"}},
	}}
	state.WorkflowState = workflow.StateWaitingForUser
	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("save state: %v", err)
	}

	loaded, err := s.LoadState(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if loaded.WorkflowState != workflow.StateWaitingForUser {
		t.Fatalf("workflow state lost: %s", loaded.WorkflowState)
	}
	if len(loaded.Messages) != 1 || len(loaded.Resources) != 1 {
		t.Fatalf("state content lost: %+v", loaded)
	}
	if loaded.Resources[0].Tags()["Project"] != "X" {
		t.Fatalf("tags lost in round trip")
	}

	// Upsert: save again with more content.
	loaded.AppendAssistant("need more info")
	if err := s.SaveState(ctx, loaded); err != nil {
		t.Fatalf("second save: %v", err)
	}
	again, _ := s.LoadState(ctx, "sess-1")
	if len(again.Messages) != 2 {
		t.Fatalf("upsert lost messages")
	}
}

func TestPolicyCRUDAndToggle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &policy.Policy{
		Name:                "no-open-ssh",
		NaturalLanguageRule: "Block port 22 from the internet",
		Platform:            resource.PlatformAll,
		Severity:            policy.SeverityError,
		Enabled:             true,
		Compiled:            &policy.CompiledRule{BlockPorts: &policy.BlockPortsRule{Ports: []int{22}}},
	}
	if err := s.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Fatalf("id not assigned")
	}

	dup := *p
	dup.ID = 0
	if err := s.CreatePolicy(ctx, &dup); !errors.Is(err, ErrPolicyNameTaken) {
		t.Fatalf("duplicate name must be rejected, got %v", err)
	}

	got, err := s.GetPolicy(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Compiled == nil || got.Compiled.BlockPorts == nil || got.Compiled.BlockPorts.Ports[0] != 22 {
		t.Fatalf("compiled rule lost: %+v", got.Compiled)
	}

	enabled, err := s.EnabledPolicies(ctx)
	if err != nil || len(enabled) != 1 {
		t.Fatalf("enabled policies: %v %v", enabled, err)
	}

	toggled, err := s.TogglePolicy(ctx, p.ID)
	if err != nil || toggled.Enabled {
		t.Fatalf("toggle must disable: %v %v", toggled, err)
	}
	if enabled, _ := s.EnabledPolicies(ctx); len(enabled) != 0 {
		t.Fatalf("disabled policy must not be fed to the engine")
	}

	toggled.Description = "updated"
	if err := s.UpdatePolicy(ctx, toggled); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.DeletePolicy(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPolicy(ctx, p.ID); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("deleted policy must be gone, got %v", err)
	}
}

func TestEnvironmentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	env := &deploy.Environment{
		Name:              "prod-aws",
		Platform:          resource.PlatformAWS,
		CredentialsCipher: "enc:v1:abcd",
		IsDefault:         true,
	}
	if err := s.CreateEnvironment(ctx, env); err != nil {
		t.Fatalf("create env: %v", err)
	}
	got, err := s.GetEnvironment(ctx, env.ID)
	if err != nil {
		t.Fatalf("get env: %v", err)
	}
	if got.CredentialsCipher != "enc:v1:abcd" || got.Platform != resource.PlatformAWS {
		t.Fatalf("environment fields lost: %+v", got)
	}
	byName, err := s.GetEnvironmentByName(ctx, "prod-aws")
	if err != nil || byName.ID != env.ID {
		t.Fatalf("lookup by name failed: %v", err)
	}
	if _, err := s.GetEnvironment(ctx, 999); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Fatalf("missing env must report not found, got %v", err)
	}
	if err := s.DeleteEnvironment(ctx, env.ID); err != nil {
		t.Fatalf("delete env: %v", err)
	}
	if err := s.DeleteEnvironment(ctx, env.ID); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Fatalf("second delete must report not found, got %v", err)
	}
}

func TestDeploymentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := &deploy.Deployment{
		DeploymentID:  "dep_abc123",
		SessionID:     "sess-1",
		EnvironmentID: 1,
		Status:        deploy.StatusPending,
		Files:         map[string]string{"main.tf": "resource {}"},
	}
	if err := s.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	d.Status = deploy.StatusPlanReady
	d.PlanOutput = "Plan: 1 to add, 0 to change, 0 to destroy."
	d.PlanSummary = &deploy.PlanSummary{Add: 1}
	d.WorkDir = "/tmp/x"
	if err := s.UpdateDeployment(ctx, d); err != nil {
		t.Fatalf("update deployment: %v", err)
	}

	got, err := s.GetDeployment(ctx, "dep_abc123")
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if got.Status != deploy.StatusPlanReady || got.PlanSummary == nil || got.PlanSummary.Add != 1 {
		t.Fatalf("deployment fields lost: %+v", got)
	}
	if got.Files["main.tf"] != "resource {}" {
		t.Fatalf("terraform files lost")
	}
	if got.WorkDir != "/tmp/x" {
		t.Fatalf("work dir lost")
	}

	list, err := s.ListDeployments(ctx, "sess-1", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list deployments: %v %v", list, err)
	}
	if _, err := s.GetDeployment(ctx, "dep_missing"); !errors.Is(err, ErrDeploymentNotFound) {
		t.Fatalf("missing deployment must report not found, got %v", err)
	}
}

func TestAuditNeverFails(t *testing.T) {
	s := openTestStore(t)
	s.RecordAudit(context.Background(), "sess-1", "workflow_run", "completed")
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM audit_logs`).Scan(&count); err != nil || count != 1 {
		t.Fatalf("audit row missing: %d %v", count, err)
	}
}
