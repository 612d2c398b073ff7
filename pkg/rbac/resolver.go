package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/contractguard/contractguard/pkg/auth"
)

// Resolver computes the permission set embedded in a new session token
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a new permission resolver
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve loads the user and returns the union of the action names of every
// permission linked to any role assigned to them. Ownership grants nothing
// here. A missing user yields (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*auth.AuthContext, error) {
	ac := &auth.AuthContext{UserID: userID}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, email, is_owner, is_super_admin, token_version
		FROM users WHERE id = $1`, userID,
	).Scan(&ac.OrganizationID, &ac.Email, &ac.IsOwner, &ac.IsSuperAdmin, &ac.TokenVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.action_name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	ac.Permissions = auth.NewPermissionSet()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		ac.Permissions[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ac, nil
}
