// Where: internal/workflow/state.go
// What: Durable per-session workflow state.
// Why: Every stage is a function over this one record; persistence sits between stages.
package workflow

import (
	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/resource"
)

// Stage labels recorded on the state. They advance monotonically through the
// graph except when a follow-up turn re-enters at parse or a failed review
// loops back to generation.
const (
	StateInitialized        = "initialized"
	StateCollecting         = "information_collection"
	StateWaitingForUser     = "waiting_for_user"
	StateCheckingCompliance = "checking_compliance"
	StateComplianceFailed   = "compliance_failed"
	StateGenerating         = "generating_code"
	StateReviewing          = "reviewing_code"
	StateReviewFailed       = "review_failed"
	StateCompleted          = "completed"
	StateError              = "error"
)

// Input types recorded on the state.
const (
	InputText        = "text"
	InputSpreadsheet = "spreadsheet"
)

// State is the per-session workflow state. It is loaded before a run,
// mutated by the stages in sequence, and persisted after the run.
type State struct {
	SessionID string        `json:"session_id"`
	Messages  []llm.Message `json:"messages"`
	UserInput string        `json:"user_input"`
	InputType string        `json:"input_type,omitempty"`

	Resources           []resource.Resource `json:"resources"`
	InformationComplete bool                `json:"information_complete"`
	MissingFields       map[string][]string `json:"missing_fields,omitempty"`

	CompliancePassed *bool              `json:"compliance_passed,omitempty"`
	Violations       []policy.Violation `json:"violations,omitempty"`
	PolicyWarnings   []policy.Violation `json:"policy_warnings,omitempty"`

	GeneratedCode map[string]string `json:"generated_code,omitempty"`

	ReviewAttempt  int    `json:"review_attempt,omitempty"`
	ReviewPassed   bool   `json:"review_passed,omitempty"`
	ReviewFeedback string `json:"review_feedback,omitempty"`

	WorkflowState string   `json:"workflow_state"`
	Errors        []string `json:"errors,omitempty"`
}

// NewState creates the initial state for a fresh session.
func NewState(sessionID string) *State {
	return &State{
		SessionID:     sessionID,
		WorkflowState: StateInitialized,
	}
}

// AppendUser appends a user turn to the conversation.
func (s *State) AppendUser(content string) {
	s.Messages = append(s.Messages, llm.Message{Role: llm.RoleUser, Content: content})
}

// AppendAssistant appends an assistant turn to the conversation.
func (s *State) AppendAssistant(content string) {
	s.Messages = append(s.Messages, llm.Message{Role: llm.RoleAssistant, Content: content})
}

// LastAssistantMessage returns the newest assistant turn ("" when none).
func (s *State) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// RecordError appends an error record and marks the state failed.
func (s *State) RecordError(msg string) {
	s.Errors = append(s.Errors, msg)
	s.WorkflowState = StateError
}

// CodeBlock is one generated file prepared for a chat response.
type CodeBlock struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Response is the chat-facing projection of a finished run.
type Response struct {
	SessionID  string         `json:"session_id"`
	Message    string         `json:"message"`
	CodeBlocks []CodeBlock    `json:"code_blocks,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// BuildResponse projects the state into the chat response shape.
func (s *State) BuildResponse() Response {
	resp := Response{
		SessionID: s.SessionID,
		Message:   s.LastAssistantMessage(),
		Metadata: map[string]any{
			"workflow_state": s.WorkflowState,
			"resource_count": len(s.Resources),
		},
	}
	if s.CompliancePassed != nil {
		resp.Metadata["compliance_passed"] = *s.CompliancePassed
	}
	if len(s.Errors) > 0 {
		resp.Metadata["error"] = s.Errors[len(s.Errors)-1]
	}
	for _, filename := range sortedKeys(s.GeneratedCode) {
		language := "hcl"
		if filename == "README.md" {
			language = "markdown"
		}
		resp.CodeBlocks = append(resp.CodeBlocks, CodeBlock{
			Filename: filename,
			Content:  s.GeneratedCode[filename],
			Language: language,
		})
	}
	return resp
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
