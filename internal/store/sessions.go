// Where: internal/store/sessions.go
// What: WorkflowState persistence.
// Why: The workflow engine loads and saves state between turns.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsloom/iacpilot/internal/workflow"
)

// LoadState returns the session's state, or nil when the session is new.
func (s *Store) LoadState(ctx context.Context, sessionID string) (*workflow.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load state %s: %w", sessionID, err)
	}
	var state workflow.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("store: decode state %s: %w", sessionID, err)
	}
	return &state, nil
}

// SaveState upserts the session's state.
func (s *Store) SaveState(ctx context.Context, state *workflow.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode state %s: %w", state.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (session_id, state_json, workflow_state, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(session_id) DO UPDATE SET
	state_json = excluded.state_json,
	workflow_state = excluded.workflow_state,
	updated_at = CURRENT_TIMESTAMP`,
		state.SessionID, string(raw), state.WorkflowState)
	if err != nil {
		return fmt.Errorf("store: save state %s: %w", state.SessionID, err)
	}
	return nil
}

// ListSessions returns session ids with their workflow state, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) (map[string]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, workflow_state FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("store: list sessions: %w", err)
		}
		out[id] = state
	}
	return out, rows.Err()
}
