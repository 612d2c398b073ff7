package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/contractguard/contractguard/pkg/database"
)

// SystemRoleIDByName returns the id of the system role mirroring a plan
func SystemRoleIDByName(ctx context.Context, q database.Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE name = $1 AND is_system_role = TRUE`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSystemRoleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find system role: %w", err)
	}
	return id, nil
}

// AssignSystemRole makes roleID the only system role held by the members of
// orgID. Custom-role assignments are untouched. Must run in a tx.
func AssignSystemRole(ctx context.Context, tx *sql.Tx, orgID, roleID int64) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id IN (SELECT id FROM users WHERE organization_id = $1)
		AND role_id IN (SELECT id FROM roles WHERE is_system_role = TRUE)`, orgID,
	); err != nil {
		return fmt.Errorf("failed to clear system roles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT id, CAST($1 AS BIGINT) FROM users WHERE organization_id = $2`, roleID, orgID,
	); err != nil {
		return fmt.Errorf("failed to assign system role: %w", err)
	}
	return nil
}
