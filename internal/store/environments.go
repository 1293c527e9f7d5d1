// Where: internal/store/environments.go
// What: Deployment environment records with sealed credentials.
// Why: The store never sees a credential in the clear.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opsloom/iacpilot/internal/deploy"
)

// ErrEnvironmentNotFound reports a missing environment id or name.
var ErrEnvironmentNotFound = errors.New("environment not found")

// CreateEnvironment inserts an environment; CredentialsCipher must already
// be sealed by the caller.
func (s *Store) CreateEnvironment(ctx context.Context, env *deploy.Environment) error {
	result, err := s.db.ExecContext(ctx, `
INSERT INTO deployment_environments (name, description, cloud_platform, credentials_cipher, is_default)
VALUES (?, ?, ?, ?, ?)`,
		env.Name, env.Description, string(env.Platform), env.CredentialsCipher, boolInt(env.IsDefault))
	if err != nil {
		return fmt.Errorf("store: create environment: %w", err)
	}
	env.ID, err = result.LastInsertId()
	return err
}

// GetEnvironment fetches an environment by id.
func (s *Store) GetEnvironment(ctx context.Context, id int64) (*deploy.Environment, error) {
	return s.scanEnvironment(s.db.QueryRowContext(ctx, environmentSelect+` WHERE id = ?`, id))
}

// GetEnvironmentByName fetches an environment by unique name.
func (s *Store) GetEnvironmentByName(ctx context.Context, name string) (*deploy.Environment, error) {
	return s.scanEnvironment(s.db.QueryRowContext(ctx, environmentSelect+` WHERE name = ?`, name))
}

// ListEnvironments returns all environments, defaults first.
func (s *Store) ListEnvironments(ctx context.Context) ([]deploy.Environment, error) {
	rows, err := s.db.QueryContext(ctx, environmentSelect+` ORDER BY is_default DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list environments: %w", err)
	}
	defer rows.Close()

	var out []deploy.Environment
	for rows.Next() {
		env, err := s.scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *env)
	}
	return out, rows.Err()
}

// DeleteEnvironment removes an environment by id.
func (s *Store) DeleteEnvironment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deployment_environments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete environment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEnvironmentNotFound
	}
	return nil
}

const environmentSelect = `
SELECT id, name, description, cloud_platform, credentials_cipher, is_default, created_at, updated_at
FROM deployment_environments`

func (s *Store) scanEnvironment(row rowScanner) (*deploy.Environment, error) {
	var env deploy.Environment
	var platform string
	var isDefault int
	err := row.Scan(&env.ID, &env.Name, &env.Description, &platform,
		&env.CredentialsCipher, &isDefault, &env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnvironmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan environment: %w", err)
	}
	env.Platform = resourcePlatform(platform)
	env.IsDefault = isDefault != 0
	return &env, nil
}
