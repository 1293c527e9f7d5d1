// Where: internal/workflow/engine.go
// What: The five-stage workflow runner and its routing predicates.
// Why: Deterministic sequencing with durable state between stages.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/progress"
	"github.com/opsloom/iacpilot/internal/resource"
)

// StateStore persists workflow state per session.
type StateStore interface {
	// LoadState returns nil (no error) when the session has no state yet.
	LoadState(ctx context.Context, sessionID string) (*State, error)
	SaveState(ctx context.Context, state *State) error
}

// PolicySource supplies the enabled policies for compliance checking.
type PolicySource interface {
	EnabledPolicies(ctx context.Context) ([]policy.Policy, error)
}

// AuditSink records workflow actions; implementations must not fail the run.
type AuditSink interface {
	RecordAudit(ctx context.Context, sessionID, action, result string)
}

// Engine sequences parse -> collect -> comply -> generate -> review over the
// per-session state. Two concurrent runs on one session serialize on a
// session-scoped lock; independent sessions run in parallel.
type Engine struct {
	store    StateStore
	policies PolicySource
	chatter  llm.Chatter
	audit    AuditSink

	maxReviewAttempts int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes the engine.
type Option func(*Engine)

// WithMaxReviewAttempts bounds the review/regenerate loop.
func WithMaxReviewAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxReviewAttempts = n
		}
	}
}

// WithAudit attaches an audit sink.
func WithAudit(sink AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

// NewEngine wires the workflow engine to its collaborators.
func NewEngine(store StateStore, policies PolicySource, chatter llm.Chatter, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow engine: state store is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("workflow engine: policy source is required")
	}
	engine := &Engine{
		store:             store,
		policies:          policies,
		chatter:           chatter,
		maxReviewAttempts: 3,
		locks:             map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RunInput is one user turn.
type RunInput struct {
	SessionID string
	Message   string
	// SpreadsheetResources seeds the session from an upload; when set the
	// turn is tagged input_type=spreadsheet.
	SpreadsheetResources []resource.Resource
}

// internal stage labels for routing.
type stage int

const (
	stageParse stage = iota
	stageCollect
	stageComply
	stageGenerate
	stageReview
	stageEnd
)

// Run loads prior state, appends the user message, executes the stage graph,
// and persists the state. Progress events stream to the emitter; dropping
// them never changes semantics. Once the state has loaded, the returned state
// is valid even on error; a missing session id or a load failure returns nil.
func (e *Engine) Run(ctx context.Context, input RunInput, emitter progress.Emitter) (st *State, err error) {
	if input.SessionID == "" {
		return nil, fmt.Errorf("workflow run: session id is required")
	}

	lock := e.sessionLock(input.SessionID)
	lock.Lock()
	defer lock.Unlock()

	st, err = e.store.LoadState(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("workflow run: load state: %w", err)
	}
	if st == nil {
		st = NewState(input.SessionID)
	}

	st.AppendUser(input.Message)
	st.UserInput = input.Message
	// InputType is a per-turn tag, not a session property: only the turn
	// that actually carries spreadsheet resources may skip re-parsing.
	if len(input.SpreadsheetResources) > 0 {
		st.InputType = InputSpreadsheet
		st.Resources = resource.Merge(st.Resources, input.SpreadsheetResources)
	} else {
		st.InputType = InputText
	}

	defer func() {
		// Persist whatever the stages produced, even after a failure, so a
		// follow-up turn can resume.
		if saveErr := e.store.SaveState(ctx, st); saveErr != nil && err == nil {
			err = fmt.Errorf("workflow run: save state: %w", saveErr)
		}
		e.recordAudit(ctx, st)
	}()
	defer func() {
		if r := recover(); r != nil {
			st.RecordError(fmt.Sprintf("internal error: %v", r))
			st.AppendAssistant("An internal error occurred. Please try again.")
			err = fmt.Errorf("workflow run: internal error: %v", r)
		}
	}()

	next := stageParse
	for next != stageEnd {
		select {
		case <-ctx.Done():
			st.RecordError("run cancelled: " + ctx.Err().Error())
			return st, ctx.Err()
		default:
		}

		switch next {
		case stageParse:
			next = e.runParse(ctx, st, emitter)
		case stageCollect:
			next = e.runCollect(ctx, st, emitter)
		case stageComply:
			next = e.runComply(ctx, st, emitter)
		case stageGenerate:
			next = e.runGenerate(ctx, st, emitter)
		case stageReview:
			next = e.runReview(ctx, st, emitter)
		}
	}

	return st, nil
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

func (e *Engine) recordAudit(ctx context.Context, st *State) {
	if e.audit == nil {
		return
	}
	e.audit.RecordAudit(ctx, st.SessionID, "workflow_run", st.WorkflowState)
}
