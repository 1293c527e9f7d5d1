// Where: internal/policy/compile_test.go
// What: Tests for the pattern-table compiler and model fallback.
// Why: Common rule families must compile without a model in the loop.
package policy

import (
	"context"
	"testing"

	"github.com/opsloom/iacpilot/internal/llm"
)

type scriptedChatter struct {
	response string
	err      error
	calls    int
}

func (s *scriptedChatter) Chat(context.Context, []llm.Message, llm.Options) (string, error) {
	s.calls++
	return s.response, s.err
}

func TestCompileBlockPortsFromPattern(t *testing.T) {
	chatter := &scriptedChatter{}
	rule, err := Compile(context.Background(), chatter, "Block ports 22 and 3389 from 0.0.0.0/0")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if chatter.calls != 0 {
		t.Fatalf("pattern-table rules must not call the model")
	}
	if rule.BlockPorts == nil || len(rule.BlockPorts.Ports) != 2 {
		t.Fatalf("unexpected compiled rule: %+v", rule)
	}
	if rule.BlockPorts.Ports[0] != 22 || rule.BlockPorts.Ports[1] != 3389 {
		t.Fatalf("unexpected ports: %v", rule.BlockPorts.Ports)
	}
	if len(rule.BlockPorts.CIDRs) != 1 || rule.BlockPorts.CIDRs[0] != "0.0.0.0/0" {
		t.Fatalf("unexpected cidrs: %v", rule.BlockPorts.CIDRs)
	}
}

func TestCompileRequiredTagsFromPattern(t *testing.T) {
	rule, err := Compile(context.Background(), nil, `All resources must have tags "Project" and "Owner"`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if rule.RequiredTags == nil {
		t.Fatalf("expected required_tags rule: %+v", rule)
	}
	if len(rule.RequiredTags.Tags) != 2 || rule.RequiredTags.Tags[0] != "Project" {
		t.Fatalf("unexpected tags: %v", rule.RequiredTags.Tags)
	}
}

func TestCompileUnquotedTagNames(t *testing.T) {
	rule, err := Compile(context.Background(), nil, "Every resource requires tags: Project, Environment")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if rule.RequiredTags == nil || len(rule.RequiredTags.Tags) != 2 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
}

func TestCompileFallsBackToModel(t *testing.T) {
	chatter := &scriptedChatter{response: `{"allowed_regions": {"regions": ["us-east-1"]}}`}
	rule, err := Compile(context.Background(), chatter, "Keep everything close to headquarters")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if chatter.calls != 1 {
		t.Fatalf("expected one model call, got %d", chatter.calls)
	}
	if rule.AllowedRegions == nil || rule.AllowedRegions.Regions[0] != "us-east-1" {
		t.Fatalf("unexpected rule: %+v", rule)
	}
}

func TestCompileRejectsUnusableModelOutput(t *testing.T) {
	chatter := &scriptedChatter{response: `{"something_else": true}`}
	if _, err := Compile(context.Background(), chatter, "Keep everything tidy"); err == nil {
		t.Fatalf("expected error for unsupported rule kind")
	}
}

func TestCompiledRuleLegacyFlatShapes(t *testing.T) {
	var rule CompiledRule
	if err := rule.UnmarshalJSON([]byte(`{"block_ports": [22], "required_tags": ["Project"]}`)); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rule.BlockPorts == nil || rule.BlockPorts.Ports[0] != 22 {
		t.Fatalf("flat block_ports not accepted: %+v", rule)
	}
	if rule.RequiredTags == nil || rule.RequiredTags.Tags[0] != "Project" {
		t.Fatalf("flat required_tags not accepted: %+v", rule)
	}
}
