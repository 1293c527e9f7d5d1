// Where: internal/store/deployments.go
// What: Deployment record persistence for the executor.
// Why: Terminal deployments are the audit trail of what hit real clouds.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsloom/iacpilot/internal/deploy"
)

// ErrDeploymentNotFound reports a missing deployment id.
var ErrDeploymentNotFound = errors.New("deployment not found")

// CreateDeployment inserts a new deployment record.
func (s *Store) CreateDeployment(ctx context.Context, d *deploy.Deployment) error {
	files, err := json.Marshal(d.Files)
	if err != nil {
		return fmt.Errorf("store: encode terraform files: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
INSERT INTO deployments (deployment_id, session_id, environment_id, status, terraform_code, work_dir)
VALUES (?, ?, ?, ?, ?, ?)`,
		d.DeploymentID, d.SessionID, d.EnvironmentID, string(d.Status), string(files), d.WorkDir)
	if err != nil {
		return fmt.Errorf("store: create deployment: %w", err)
	}
	d.ID, err = result.LastInsertId()
	return err
}

// GetDeployment fetches a deployment by its public id.
func (s *Store) GetDeployment(ctx context.Context, deploymentID string) (*deploy.Deployment, error) {
	return scanDeployment(s.db.QueryRowContext(ctx, deploymentSelect+` WHERE deployment_id = ?`, deploymentID))
}

// UpdateDeployment overwrites a deployment's mutable fields.
func (s *Store) UpdateDeployment(ctx context.Context, d *deploy.Deployment) error {
	summary, err := marshalNullable(d.PlanSummary)
	if err != nil {
		return err
	}
	outputs, err := marshalNullable(d.TerraformOutputs)
	if err != nil {
		return err
	}
	var completed any
	if d.CompletedAt != nil {
		completed = d.CompletedAt.UTC()
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE deployments
SET status = ?, plan_output = ?, plan_summary = ?, apply_output = ?,
    terraform_outputs = ?, error_message = ?, work_dir = ?,
    updated_at = CURRENT_TIMESTAMP, completed_at = ?
WHERE deployment_id = ?`,
		string(d.Status), d.PlanOutput, summary, d.ApplyOutput,
		outputs, d.ErrorMessage, d.WorkDir, completed, d.DeploymentID)
	if err != nil {
		return fmt.Errorf("store: update deployment %s: %w", d.DeploymentID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("store: %w: %s", ErrDeploymentNotFound, d.DeploymentID)
	}
	return nil
}

// ListDeployments returns deployments, optionally filtered by session,
// newest first.
func (s *Store) ListDeployments(ctx context.Context, sessionID string, limit int) ([]deploy.Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := deploymentSelect
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list deployments: %w", err)
	}
	defer rows.Close()

	var out []deploy.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

const deploymentSelect = `
SELECT id, deployment_id, session_id, environment_id, status, terraform_code,
       plan_output, plan_summary, apply_output, terraform_outputs,
       error_message, work_dir, created_at, updated_at, completed_at
FROM deployments`

func scanDeployment(row rowScanner) (*deploy.Deployment, error) {
	var d deploy.Deployment
	var status, files string
	var summary, outputs sql.NullString
	var completed sql.NullTime
	err := row.Scan(&d.ID, &d.DeploymentID, &d.SessionID, &d.EnvironmentID, &status, &files,
		&d.PlanOutput, &summary, &d.ApplyOutput, &outputs,
		&d.ErrorMessage, &d.WorkDir, &d.CreatedAt, &d.UpdatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan deployment: %w", err)
	}
	d.Status = deploy.Status(status)
	if err := json.Unmarshal([]byte(files), &d.Files); err != nil {
		return nil, fmt.Errorf("store: decode terraform files: %w", err)
	}
	if summary.Valid && summary.String != "" {
		var ps deploy.PlanSummary
		if err := json.Unmarshal([]byte(summary.String), &ps); err != nil {
			return nil, fmt.Errorf("store: decode plan summary: %w", err)
		}
		d.PlanSummary = &ps
	}
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &d.TerraformOutputs); err != nil {
			return nil, fmt.Errorf("store: decode terraform outputs: %w", err)
		}
	}
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return &d, nil
}

func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *deploy.PlanSummary:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode json column: %w", err)
	}
	return string(raw), nil
}
