// Where: internal/store/store.go
// What: SQLite-backed persistence for sessions, policies, environments, deployments.
// Why: One relational store behind the interfaces the engine and executor consume.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Serialized access keeps sqlite happy under concurrent sessions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	state_json   TEXT NOT NULL,
	workflow_state TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS security_policies (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	name                  TEXT NOT NULL UNIQUE,
	description           TEXT NOT NULL DEFAULT '',
	natural_language_rule TEXT NOT NULL,
	compiled_rule         TEXT,
	cloud_platform        TEXT NOT NULL DEFAULT 'all',
	severity              TEXT NOT NULL DEFAULT 'error',
	enabled               INTEGER NOT NULL DEFAULT 1,
	created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deployment_environments (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL UNIQUE,
	description        TEXT NOT NULL DEFAULT '',
	cloud_platform     TEXT NOT NULL,
	credentials_cipher TEXT NOT NULL DEFAULT '',
	is_default         INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deployments (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	deployment_id     TEXT NOT NULL UNIQUE,
	session_id        TEXT NOT NULL,
	environment_id    INTEGER NOT NULL,
	status            TEXT NOT NULL,
	terraform_code    TEXT NOT NULL DEFAULT '{}',
	plan_output       TEXT NOT NULL DEFAULT '',
	plan_summary      TEXT,
	apply_output      TEXT NOT NULL DEFAULT '',
	terraform_outputs TEXT,
	error_message     TEXT NOT NULL DEFAULT '',
	work_dir          TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_deployments_session ON deployments(session_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	result     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// RecordAudit appends an audit row; failures are swallowed by design so
// auditing never fails a run.
func (s *Store) RecordAudit(ctx context.Context, sessionID, action, result string) {
	_, _ = s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (session_id, action, result) VALUES (?, ?, ?)`,
		sessionID, action, result)
}
