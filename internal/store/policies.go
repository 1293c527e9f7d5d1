// Where: internal/store/policies.go
// What: Security policy CRUD and the enabled-policy feed for the engine.
// Why: Policies are owned here and outlive any session.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsloom/iacpilot/internal/policy"
	"github.com/opsloom/iacpilot/internal/resource"
)

// ErrPolicyNotFound reports a missing policy id.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrPolicyNameTaken reports a unique-name conflict.
var ErrPolicyNameTaken = errors.New("policy name already exists")

// CreatePolicy inserts a policy and assigns its id.
func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	if exists, err := s.policyNameExists(ctx, p.Name, 0); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("store: %w: %s", ErrPolicyNameTaken, p.Name)
	}

	compiled, err := marshalCompiled(p.Compiled)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
INSERT INTO security_policies (name, description, natural_language_rule, compiled_rule, cloud_platform, severity, enabled)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.NaturalLanguageRule, compiled, string(p.Platform), string(p.Severity), boolInt(p.Enabled))
	if err != nil {
		return fmt.Errorf("store: create policy: %w", err)
	}
	p.ID, err = result.LastInsertId()
	return err
}

// GetPolicy fetches one policy by id.
func (s *Store) GetPolicy(ctx context.Context, id int64) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, policySelect+` WHERE id = ?`, id)
	return scanPolicy(row)
}

// ListPolicies returns policies, optionally restricted to enabled ones.
func (s *Store) ListPolicies(ctx context.Context, enabledOnly bool) ([]policy.Policy, error) {
	query := policySelect
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// EnabledPolicies implements the workflow engine's policy source.
func (s *Store) EnabledPolicies(ctx context.Context) ([]policy.Policy, error) {
	return s.ListPolicies(ctx, true)
}

// UpdatePolicy overwrites a policy's mutable fields. Callers recompile the
// rule before updating when the natural-language text changed.
func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	if exists, err := s.policyNameExists(ctx, p.Name, p.ID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("store: %w: %s", ErrPolicyNameTaken, p.Name)
	}
	compiled, err := marshalCompiled(p.Compiled)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE security_policies
SET name = ?, description = ?, natural_language_rule = ?, compiled_rule = ?,
    cloud_platform = ?, severity = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`,
		p.Name, p.Description, p.NaturalLanguageRule, compiled,
		string(p.Platform), string(p.Severity), boolInt(p.Enabled), p.ID)
	if err != nil {
		return fmt.Errorf("store: update policy %d: %w", p.ID, err)
	}
	return requireRow(result, p.ID)
}

// TogglePolicy flips the enabled flag and returns the updated policy.
func (s *Store) TogglePolicy(ctx context.Context, id int64) (*policy.Policy, error) {
	result, err := s.db.ExecContext(ctx, `
UPDATE security_policies SET enabled = 1 - enabled, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: toggle policy %d: %w", id, err)
	}
	if err := requireRow(result, id); err != nil {
		return nil, err
	}
	return s.GetPolicy(ctx, id)
}

// DeletePolicy removes a policy.
func (s *Store) DeletePolicy(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM security_policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete policy %d: %w", id, err)
	}
	return requireRow(result, id)
}

const policySelect = `
SELECT id, name, description, natural_language_rule, compiled_rule,
       cloud_platform, severity, enabled, created_at, updated_at
FROM security_policies`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var p policy.Policy
	var compiled sql.NullString
	var platform, severity string
	var enabled int
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.NaturalLanguageRule, &compiled,
		&platform, &severity, &enabled, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan policy: %w", err)
	}
	p.Platform = resourcePlatform(platform)
	p.Severity = policy.Severity(severity)
	p.Enabled = enabled != 0
	if compiled.Valid && compiled.String != "" {
		var rule policy.CompiledRule
		if err := json.Unmarshal([]byte(compiled.String), &rule); err != nil {
			return nil, fmt.Errorf("store: decode compiled rule: %w", err)
		}
		p.Compiled = &rule
	}
	return &p, nil
}

func (s *Store) policyNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM security_policies WHERE name = ? AND id != ?`, name, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check policy name: %w", err)
	}
	return count > 0, nil
}

func marshalCompiled(rule *policy.CompiledRule) (any, error) {
	if rule == nil {
		return nil, nil
	}
	raw, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("store: encode compiled rule: %w", err)
	}
	return string(raw), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func resourcePlatform(s string) resource.Platform {
	return resource.Platform(s)
}

func requireRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("store: %w: id %d", ErrPolicyNotFound, id)
	}
	return nil
}
