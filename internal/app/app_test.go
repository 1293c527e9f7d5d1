// Where: internal/app/app_test.go
// What: Tests for CLI run behavior and command routing.
// Why: Ensure the command tree stays stable and errors exit non-zero.
package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/store"
	"github.com/opsloom/iacpilot/internal/workflow"
)

// scriptedChatter replays canned completions in order.
type scriptedChatter struct {
	responses []string
}

func (s *scriptedChatter) Chat(context.Context, []llm.Message, llm.Options) (string, error) {
	if len(s.responses) == 0 {
		return `{"approved": true}`, nil
	}
	head := s.responses[0]
	s.responses = s.responses[1:]
	return head, nil
}

func testDeps(t *testing.T, chatter llm.Chatter) (Dependencies, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine, err := workflow.NewEngine(st, st, chatter)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return Dependencies{Store: st, Engine: engine, Chatter: chatter}, st
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	deps, _ := testDeps(t, &scriptedChatter{})
	deps.Out = &out
	if code := Run([]string{"version"}, deps); code != 0 {
		t.Fatalf("exit code = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "iacpilot") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	deps, _ := testDeps(t, &scriptedChatter{})
	deps.Out = &out
	if code := Run([]string{"frobnicate"}, deps); code == 0 {
		t.Fatalf("expected non-zero exit code for unknown command")
	}
}

func TestRunChatIncompleteTurn(t *testing.T) {
	extraction := `{"information_complete": false,
		"resources": [{"platform": "aws", "type": "aws_ec2", "name": "web", "properties": {"Tags": {}}}],
		"missing_fields": {"web": ["InstanceType", "Region"]},
		"message": "Which instance type and region?"}`
	var out bytes.Buffer
	deps, st := testDeps(t, &scriptedChatter{responses: []string{extraction}})
	deps.Out = &out

	if code := Run([]string{"chat", "create an ec2 called web", "--session", "s1", "-q"}, deps); code != 0 {
		t.Fatalf("exit code = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "more information") {
		t.Fatalf("follow-up question not rendered: %q", out.String())
	}

	state, err := st.LoadState(context.Background(), "s1")
	if err != nil || state == nil {
		t.Fatalf("state not persisted: %v", err)
	}
	if state.WorkflowState != workflow.StateWaitingForUser {
		t.Fatalf("workflow state = %q", state.WorkflowState)
	}
	if len(state.Resources) != 1 {
		t.Fatalf("resources = %d", len(state.Resources))
	}
}

func TestRunPolicyAddListToggle(t *testing.T) {
	var out bytes.Buffer
	deps, _ := testDeps(t, &scriptedChatter{})
	deps.Out = &out

	args := []string{"policy", "add", "ssh-lockdown", "Block port 22 from 0.0.0.0/0", "--severity", "error"}
	if code := Run(args, deps); code != 0 {
		t.Fatalf("policy add exit code = %d, output %q", code, out.String())
	}

	out.Reset()
	if code := Run([]string{"policy", "list"}, deps); code != 0 {
		t.Fatalf("policy list exit code = %d", code)
	}
	if !strings.Contains(out.String(), "ssh-lockdown") {
		t.Fatalf("policy not listed: %q", out.String())
	}

	out.Reset()
	if code := Run([]string{"policy", "toggle", "1"}, deps); code != 0 {
		t.Fatalf("policy toggle exit code = %d, output %q", code, out.String())
	}
	if !strings.Contains(out.String(), "disabled") {
		t.Fatalf("toggle output: %q", out.String())
	}
}

func TestRunDeployPlanWithoutGeneratedCode(t *testing.T) {
	var out bytes.Buffer
	deps, _ := testDeps(t, &scriptedChatter{})
	deps.Out = &out

	if code := Run([]string{"deploy", "plan", "missing-session", "prod"}, deps); code == 0 {
		t.Fatalf("expected failure for session without generated code")
	}
	if !strings.Contains(out.String(), "no generated code") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
