// Where: internal/workflow/engine_test.go
// What: End-to-end tests for the stage graph over fake collaborators.
// Why: The routing predicates and re-entry rules carry the whole pipeline.
package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/progress"
	"github.com/opsloom/iacpilot/internal/resource"
)

type memoryStore struct {
	states map[string]*State
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: map[string]*State{}}
}

func (m *memoryStore) LoadState(_ context.Context, sessionID string) (*State, error) {
	return m.states[sessionID], nil
}

func (m *memoryStore) SaveState(_ context.Context, state *State) error {
	m.saves++
	m.states[state.SessionID] = state
	return nil
}

type fixedPolicies struct {
	policies []policy.Policy
}

func (f fixedPolicies) EnabledPolicies(context.Context) ([]policy.Policy, error) {
	return f.policies, nil
}

// queueChatter replays scripted responses in order; the review prompt always
// gets an approving review unless a scripted review is queued.
type queueChatter struct {
	responses []string
	calls     []string
}

func (q *queueChatter) Chat(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	q.calls = append(q.calls, messages[0].Content[:40])
	if len(q.responses) == 0 {
		return `{"passed": true, "overall_score": 9, "issues": [], "summary": "ok"}`, nil
	}
	next := q.responses[0]
	q.responses = q.responses[1:]
	return next, nil
}

func newEngine(t *testing.T, store *memoryStore, policies []policy.Policy, chatter llm.Chatter) *Engine {
	t.Helper()
	engine, err := NewEngine(store, fixedPolicies{policies: policies}, chatter)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func completeVMExtraction() string {
	return `{
	  "information_complete": true,
	  "resources": [{
	    "type": "azure_vm", "name": "app-vm",
	    "properties": {
	      "ResourceGroup": "my-rg", "ResourceGroupExists": "y",
	      "Location": "East US", "VMSize": "Standard_B2s", "OSType": "Linux",
	      "AdminUsername": "azureadmin", "SshPublicKey": "ssh-rsa AAAA",
	      "Subnet": "app-subnet", "SubnetExists": "y",
	      "Tags": {}
	    }
	  }]
	}`
}

func requireProjectPolicy() policy.Policy {
	return policy.Policy{
		ID: 1, Name: "require-project", Severity: policy.SeverityError, Enabled: true,
		Platform: resource.PlatformAll,
		Compiled: &policy.CompiledRule{RequiredTags: &policy.RequiredTagsRule{Tags: []string{"Project"}}},
	}
}

func TestFollowUpTagRepairScenario(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{completeVMExtraction()}}
	engine := newEngine(t, store, []policy.Policy{requireProjectPolicy()}, chatter)

	// Turn 1: complete VM, but the Project tag is missing -> comply fails.
	st, err := engine.Run(context.Background(), RunInput{
		SessionID: "s1",
		Message:   "create azure vm in East US, size Standard_B2s, rg my-rg (existing), admin azureadmin, ssh key ssh-rsa AAAA",
	}, nil)
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if st.WorkflowState != StateComplianceFailed {
		t.Fatalf("turn 1 state = %s, want %s", st.WorkflowState, StateComplianceFailed)
	}
	if st.CompliancePassed == nil || *st.CompliancePassed {
		t.Fatalf("turn 1 compliance must fail")
	}
	if len(st.GeneratedCode) != 0 {
		t.Fatalf("no code may be generated on compliance failure")
	}

	// Turn 2: user supplies the tags; parse re-runs and merges.
	tagRepair := `{
	  "information_complete": true,
	  "resources": [{
	    "type": "azure_vm", "name": "app-vm",
	    "properties": {"Tags": {"Project": "X", "Owner": "Y"}}
	  }]
	}`
	chatter.responses = []string{tagRepair}
	st, err = engine.Run(context.Background(), RunInput{SessionID: "s1", Message: "Tags: Project=X, Owner=Y"}, nil)
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if len(st.Resources) != 1 {
		t.Fatalf("turn 2 must keep one merged resource, got %d", len(st.Resources))
	}
	tags := st.Resources[0].Tags()
	if tags["Project"] != "X" || tags["Owner"] != "Y" {
		t.Fatalf("tags not merged: %v", tags)
	}
	if st.WorkflowState != StateCompleted {
		t.Fatalf("turn 2 state = %s, want %s", st.WorkflowState, StateCompleted)
	}
	if st.CompliancePassed == nil || !*st.CompliancePassed {
		t.Fatalf("turn 2 compliance must pass")
	}
	main := st.GeneratedCode["main.tf"]
	if !strings.Contains(main, `Project = "X"`) || !strings.Contains(main, `Owner   = "Y"`) {
		t.Fatalf("generated code must carry the tags:\n%s", main)
	}
	// The VM still has the fields from turn 1.
	if !strings.Contains(main, "azurerm_linux_virtual_machine") {
		t.Fatalf("turn 1 fields lost on merge:\n%s", main)
	}
}

func TestTypeAliasMergeAcrossTurns(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{`{
	  "resources": [{"type": "aws_ec2", "name": "web", "properties": {"Region": "us-east-1"}}]
	}`}}
	engine := newEngine(t, store, nil, chatter)

	st, err := engine.Run(context.Background(), RunInput{SessionID: "s2", Message: "ec2 named web in us-east-1"}, nil)
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	if st.WorkflowState != StateWaitingForUser {
		t.Fatalf("incomplete ec2 must wait for user, got %s", st.WorkflowState)
	}
	if msg := st.LastAssistantMessage(); !strings.Contains(msg, "InstanceType") || !strings.Contains(msg, "AMI_ID") {
		t.Fatalf("missing-fields message must enumerate gaps: %q", msg)
	}

	chatter.responses = []string{`{
	  "resources": [{"type": "EC2", "name": "Web", "properties": {"InstanceType": "t2.micro", "AMI_ID": "ami-0abc"}}]
	}`}
	st, err = engine.Run(context.Background(), RunInput{SessionID: "s2", Message: "t2.micro with ami-0abc"}, nil)
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	if len(st.Resources) != 1 {
		t.Fatalf("alias spellings must merge to one resource, got %d", len(st.Resources))
	}
	r := st.Resources[0]
	if r.Type != "aws_ec2" || r.Name != "web" {
		t.Fatalf("unexpected merged identity: type=%s name=%s", r.Type, r.Name)
	}
	if r.StringProp("Region") != "us-east-1" || r.StringProp("InstanceType") != "t2.micro" {
		t.Fatalf("properties not merged: %v", r.Properties)
	}
	if st.WorkflowState != StateCompleted {
		t.Fatalf("turn 2 should complete, got %s", st.WorkflowState)
	}
}

func TestSpreadsheetSeedSkipsReparse(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{}
	engine := newEngine(t, store, nil, chatter)

	seed := resource.Resource{
		Type: "azure_storage", Name: "st1",
		Properties: map[string]any{
			"ResourceGroup": "rg", "ResourceGroupExists": "y",
			"Location": "eastus", "StorageAccountName": "stdemo01",
			"Project": "abc",
		},
	}
	st, err := engine.Run(context.Background(), RunInput{
		SessionID:            "s3",
		Message:              "uploaded spreadsheet",
		SpreadsheetResources: []resource.Resource{seed},
	}, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !st.InformationComplete {
		t.Fatalf("spreadsheet seed must mark information complete")
	}
	receipt := ""
	for _, m := range st.Messages {
		if m.Role == llm.RoleAssistant && strings.Contains(m.Content, "spreadsheet upload") {
			receipt = m.Content
		}
	}
	if !strings.Contains(receipt, "1 resources") {
		t.Fatalf("expected receipt message, got %q", receipt)
	}
	if st.WorkflowState != StateCompleted {
		t.Fatalf("seeded complete batch should complete, got %s", st.WorkflowState)
	}
	// Metadata mirror ran during the seed turn.
	if st.Resources[0].Tags()["Project"] != "abc" {
		t.Fatalf("metadata mirror missing on seed: %v", st.Resources[0].Tags())
	}
	// Parse-stage extraction calls must not have happened (review call only).
	for _, call := range chatter.calls {
		if strings.Contains(call, "Infrastructure as Code") {
			t.Fatalf("spreadsheet seed must not re-parse")
		}
	}
}

func TestFollowUpAfterSpreadsheetSeedReparses(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{}
	engine := newEngine(t, store, nil, chatter)

	seed := resource.Resource{
		Type: "aws_s3", Name: "logs",
		Properties: map[string]any{"Region": "us-east-1", "BucketName": "logs-1"},
	}
	if _, err := engine.Run(context.Background(), RunInput{
		SessionID: "s4", Message: "uploaded spreadsheet",
		SpreadsheetResources: []resource.Resource{seed},
	}, nil); err != nil {
		t.Fatalf("seed turn failed: %v", err)
	}

	// A natural-language follow-up is a text turn: it must re-enter parse so
	// newly supplied fields land on the seeded resource.
	chatter.responses = []string{`{
	  "resources": [{"type": "aws_s3", "name": "logs", "properties": {"Versioning": "Enabled"}}]
	}`}
	st, err := engine.Run(context.Background(), RunInput{SessionID: "s4", Message: "add versioning"}, nil)
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}
	if st.WorkflowState != StateCompleted {
		t.Fatalf("follow-up run state: %s", st.WorkflowState)
	}
	if len(st.Resources) != 1 {
		t.Fatalf("follow-up must merge into the seeded resource, got %d", len(st.Resources))
	}
	if st.Resources[0].StringProp("Versioning") != "Enabled" {
		t.Fatalf("follow-up field not merged: %v", st.Resources[0].Properties)
	}
	if st.Resources[0].StringProp("BucketName") != "logs-1" {
		t.Fatalf("seeded fields must survive the follow-up merge")
	}
}

func TestParseFailureAsksForClarification(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{"I do not understand, could you clarify?"}}
	engine := newEngine(t, store, nil, chatter)

	st, err := engine.Run(context.Background(), RunInput{SessionID: "s5", Message: "hello"}, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if st.WorkflowState != StateWaitingForUser {
		t.Fatalf("parse failure must wait for user, got %s", st.WorkflowState)
	}
	if len(st.Resources) != 0 {
		t.Fatalf("parse failure must not invent resources")
	}
	if msg := st.LastAssistantMessage(); !strings.Contains(msg, "rephrase") {
		t.Fatalf("expected clarification message, got %q", msg)
	}
	if len(st.Errors) != 0 {
		t.Fatalf("parse failure is not a pipeline error: %v", st.Errors)
	}
}

func TestReviewFailureTriggersBoundedRegeneration(t *testing.T) {
	store := newMemoryStore()
	failing := `{"passed": false, "overall_score": 4, "summary": "bad", "issues": [{"severity": "critical", "file": "main.tf", "description": "broken", "suggestion": "fix"}]}`
	fixedCode := "```main.tf\nresource \"azurerm_linux_virtual_machine\" \"app_vm\" {}\n```"
	chatter := &queueChatter{responses: []string{
		completeVMExtraction(), // parse
		failing,                // review attempt 1
		fixedCode,              // regenerate
		`{"passed": true, "overall_score": 9, "issues": [], "summary": "fixed"}`, // review attempt 2
	}}
	engine := newEngine(t, store, nil, chatter)

	st, err := engine.Run(context.Background(), RunInput{SessionID: "s6", Message: "create the vm"}, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if st.WorkflowState != StateCompleted {
		t.Fatalf("expected completion after regeneration, got %s", st.WorkflowState)
	}
	if st.ReviewAttempt != 2 {
		t.Fatalf("expected 2 review attempts, got %d", st.ReviewAttempt)
	}
	if !st.ReviewPassed {
		t.Fatalf("review must pass after the fix")
	}
}

func TestProgressEventsFollowStageSequence(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{completeVMExtraction()}}
	engine := newEngine(t, store, nil, chatter)

	emitter := progress.NewChannel(64)
	if _, err := engine.Run(context.Background(), RunInput{SessionID: "s7", Message: "create the vm"}, emitter); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	emitter.Close()

	var agents []progress.Agent
	for e := range emitter.Events() {
		if e.Status == progress.StatusStarted {
			agents = append(agents, e.Agent)
		}
	}
	want := []progress.Agent{
		progress.AgentParser, progress.AgentCollector, progress.AgentComply,
		progress.AgentGenerator, progress.AgentReviewer,
	}
	if len(agents) != len(want) {
		t.Fatalf("expected %d stage starts, got %v", len(want), agents)
	}
	for i := range want {
		if agents[i] != want[i] {
			t.Fatalf("stage order mismatch at %d: got %v", i, agents)
		}
	}
}

func TestStatePersistedEvenOnParseFailure(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{"not json at all"}}
	engine := newEngine(t, store, nil, chatter)

	if _, err := engine.Run(context.Background(), RunInput{SessionID: "s8", Message: "hi"}, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("state must be persisted once per run, got %d", store.saves)
	}
	saved := store.states["s8"]
	if saved == nil || len(saved.Messages) != 2 {
		t.Fatalf("persisted state must hold the conversation: %+v", saved)
	}
}

func TestBuildResponseProjection(t *testing.T) {
	store := newMemoryStore()
	chatter := &queueChatter{responses: []string{completeVMExtraction()}}
	engine := newEngine(t, store, nil, chatter)

	st, err := engine.Run(context.Background(), RunInput{SessionID: "s9", Message: "create the vm"}, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	resp := st.BuildResponse()
	if resp.SessionID != "s9" || resp.Message == "" {
		t.Fatalf("bad response projection: %+v", resp)
	}
	if len(resp.CodeBlocks) != 5 {
		t.Fatalf("expected 5 code blocks, got %d", len(resp.CodeBlocks))
	}
	if resp.Metadata["workflow_state"] != StateCompleted {
		t.Fatalf("metadata must carry the workflow state: %v", resp.Metadata)
	}
}
