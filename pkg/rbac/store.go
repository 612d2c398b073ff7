package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/contractguard/contractguard/pkg/database"
)

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListPermissions returns the whole permission catalog
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_name, description FROM permissions ORDER BY action_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ActionName, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// checkPermissionIDs fails with ErrInvalidPermission unless every id exists
func checkPermissionIDs(ctx context.Context, q database.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permissions WHERE id IN (`+database.Placeholders(1, len(ids))+`)`,
		database.Int64Args(ids)...,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check permissions: %w", err)
	}
	if n != len(ids) {
		return ErrInvalidPermission
	}
	return nil
}

const roleColumns = `id, name, organization_id, is_system_role, created_at, updated_at`

func scanRole(scanner interface{ Scan(dest ...interface{}) error }) (*Role, error) {
	var r Role
	var orgID sql.NullInt64
	if err := scanner.Scan(&r.ID, &r.Name, &orgID, &r.IsSystemRole, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if orgID.Valid {
		id := orgID.Int64
		r.OrganizationID = &id
	}
	r.Permissions = []Permission{}
	return &r, nil
}

// getRole loads any role by id, or returns sql.ErrNoRows
func getRole(ctx context.Context, q database.Querier, roleID int64) (*Role, error) {
	return scanRole(q.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
}

// getCustomRole loads a custom role of orgID. System roles and roles of
// other organizations yield ErrRoleNotFound.
func getCustomRole(ctx context.Context, q database.Querier, roleID, orgID int64) (*Role, error) {
	role, err := scanRole(q.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND organization_id = $2 AND is_system_role = FALSE`,
		roleID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// rolePermissions returns the permissions linked to roleID
func rolePermissions(ctx context.Context, q database.Querier, roleID int64) ([]Permission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.action_name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.action_name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ActionName, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// permissionsByRole loads the permissions of every role matched by where
func permissionsByRole(ctx context.Context, q database.Querier, where string, args ...interface{}) (map[int64][]Permission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rp.role_id, p.id, p.action_name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles r ON r.id = rp.role_id
		WHERE `+where+`
		ORDER BY rp.role_id, p.action_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	byRole := make(map[int64][]Permission)
	for rows.Next() {
		var roleID int64
		var p Permission
		if err := rows.Scan(&roleID, &p.ID, &p.ActionName, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		byRole[roleID] = append(byRole[roleID], p)
	}
	return byRole, rows.Err()
}

// replaceRolePermissions swaps the role's permission rows. Must run in a tx.
func replaceRolePermissions(ctx context.Context, tx *sql.Tx, roleID int64, permissionIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid,
		); err != nil {
			return fmt.Errorf("failed to add role permission: %w", err)
		}
	}
	return nil
}

// listCustomRoles returns the organization's custom roles with user counts
func listCustomRoles(ctx context.Context, q database.Querier, orgID int64) ([]RoleSummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.name, r.organization_id, r.is_system_role, r.created_at, r.updated_at, COUNT(ur.user_id)
		FROM roles r
		LEFT JOIN user_roles ur ON ur.role_id = r.id
		WHERE r.organization_id = $1 AND r.is_system_role = FALSE
		GROUP BY r.id, r.name, r.organization_id, r.is_system_role, r.created_at, r.updated_at
		ORDER BY r.name, r.id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleSummary{}
	for rows.Next() {
		var rs RoleSummary
		var org sql.NullInt64
		if err := rows.Scan(&rs.ID, &rs.Name, &org, &rs.IsSystemRole, &rs.CreatedAt, &rs.UpdatedAt, &rs.UserCount); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if org.Valid {
			id := org.Int64
			rs.OrganizationID = &id
		}
		rs.Permissions = []Permission{}
		roles = append(roles, rs)
	}
	return roles, rows.Err()
}

// listSystemRoles returns every system role
func listSystemRoles(ctx context.Context, q database.Querier) ([]*Role, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE is_system_role = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list system roles: %w", err)
	}
	defer rows.Close()

	roles := []*Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// userInOrganization reports whether userID belongs to orgID
func userInOrganization(ctx context.Context, q database.Querier, userID, orgID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = $1 AND organization_id = $2`, userID, orgID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}

// checkCustomRoleIDs fails with ErrRoleNotFound unless every id is a custom role of orgID
func checkCustomRoleIDs(ctx context.Context, q database.Querier, orgID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	var n int
	args := append([]interface{}{orgID}, database.Int64Args(roleIDs)...)
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roles WHERE organization_id = $1 AND is_system_role = FALSE AND id IN (`+
			database.Placeholders(2, len(roleIDs))+`)`,
		args...,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check roles: %w", err)
	}
	if n != len(roleIDs) {
		return ErrRoleNotFound
	}
	return nil
}

// replaceUserCustomRoles swaps the user's custom-role rows, leaving the
// system-role assignment that follows the subscription. Must run in a tx.
func replaceUserCustomRoles(ctx context.Context, tx *sql.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1
		AND role_id IN (SELECT id FROM roles WHERE is_system_role = FALSE)`, userID,
	); err != nil {
		return fmt.Errorf("failed to clear user roles: %w", err)
	}
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, rid,
		); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
	}
	return nil
}

// listUsers returns the members of orgID, optionally narrowed to one user
func listUsers(ctx context.Context, q database.Querier, orgID int64, userID int64) ([]*UserWithRoles, error) {
	query := `SELECT id, organization_id, email, name, is_owner, is_super_admin FROM users WHERE organization_id = $1`
	args := []interface{}{orgID}
	if userID != 0 {
		query += ` AND id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := []*UserWithRoles{}
	byID := make(map[int64]*UserWithRoles)
	for rows.Next() {
		u := &UserWithRoles{Roles: []RoleRef{}}
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.IsOwner, &u.IsSuperAdmin); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(users) == 0 {
		return users, nil
	}

	roleRows, err := q.QueryContext(ctx, `
		SELECT ur.user_id, r.id, r.name, r.is_system_role
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		JOIN users u ON u.id = ur.user_id
		WHERE u.organization_id = $1
		ORDER BY r.is_system_role DESC, r.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var uid int64
		var ref RoleRef
		if err := roleRows.Scan(&uid, &ref.ID, &ref.Name, &ref.IsSystemRole); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		if u, ok := byID[uid]; ok {
			u.Roles = append(u.Roles, ref)
		}
	}
	return users, roleRows.Err()
}

// planIDByName finds the subscription plan a system role mirrors
func planIDByName(ctx context.Context, q database.Querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM subscription_plans WHERE name = $1`, name).Scan(&id)
	return id, err
}

// subscribedOrganizations returns the distinct organizations holding any
// subscription to planID
func subscribedOrganizations(ctx context.Context, q database.Querier, planID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT organization_id FROM subscriptions WHERE plan_id = $1 ORDER BY organization_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed organizations: %w", err)
	}
	defer rows.Close()

	orgIDs := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		orgIDs = append(orgIDs, id)
	}
	return orgIDs, rows.Err()
}

// BumpTokenVersions increments token_version by one for every user of the
// given organizations in a single statement and returns the rows touched.
func BumpTokenVersions(ctx context.Context, q database.Querier, orgIDs []int64) (int64, error) {
	if len(orgIDs) == 0 {
		return 0, nil
	}
	args := append([]interface{}{time.Now().UTC()}, database.Int64Args(orgIDs)...)
	result, err := q.ExecContext(ctx,
		`UPDATE users SET token_version = token_version + 1, updated_at = $1 WHERE organization_id IN (`+
			database.Placeholders(2, len(orgIDs))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump token versions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count bumped users: %w", err)
	}
	return n, nil
}

// uniqueIDs drops duplicates and preserves first-seen order
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
