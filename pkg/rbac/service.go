package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/apperrors"
	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/observability"
)

// Sync outcomes reported on contractguard_permission_syncs_total
const (
	syncInvalidated        = "invalidated"
	syncNoPlan             = "no_plan"
	syncInvalidationFailed = "invalidation_failed"
	syncFailed             = "failed"
)

var errNameRequired = apperrors.Invalid("name is required")

// Service is the RBAC administration service: custom roles, user role
// assignment and the system-role permission sync.
type Service struct {
	db      *sql.DB
	store   *Store
	audit   audit.Logger
	metrics *observability.Metrics
	log     logrus.FieldLogger
}

// NewService creates a new RBAC service
func NewService(db *sql.DB, auditLogger audit.Logger, metrics *observability.Metrics, log logrus.FieldLogger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Service{
		db:      db,
		store:   NewStore(db),
		audit:   auditLogger,
		metrics: metrics,
		log:     log.WithField("component", "rbac"),
	}
}

// ListPermissions returns the permission catalog
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// ListRoles returns the organization's custom roles with permissions and user counts
func (s *Service) ListRoles(ctx context.Context, orgID int64) ([]RoleSummary, error) {
	roles, err := listCustomRoles(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return roles, nil
	}

	perms, err := permissionsByRole(ctx, s.db, `r.organization_id = $1 AND r.is_system_role = FALSE`, orgID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if p, ok := perms[roles[i].ID]; ok {
			roles[i].Permissions = p
		}
	}
	return roles, nil
}

// GetRole returns a custom role of orgID with its permissions
func (s *Service) GetRole(ctx context.Context, roleID, orgID int64) (*Role, error) {
	role, err := getCustomRole(ctx, s.db, roleID, orgID)
	if err != nil {
		return nil, err
	}
	if role.Permissions, err = rolePermissions(ctx, s.db, roleID); err != nil {
		return nil, err
	}
	return role, nil
}

// CreateRole creates a custom role in orgID. Names need not be unique.
func (s *Service) CreateRole(ctx context.Context, orgID int64, name string, permissionIDs []int64) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	ids := uniqueIDs(permissionIDs)

	var role *Role
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := checkPermissionIDs(ctx, tx, ids); err != nil {
			return err
		}

		now := time.Now().UTC()
		var roleID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, organization_id, is_system_role, created_at, updated_at)
			VALUES ($1, $2, FALSE, $3, $3)
			RETURNING id`,
			name, orgID, now,
		).Scan(&roleID); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		if err := replaceRolePermissions(ctx, tx, roleID, ids); err != nil {
			return err
		}
		return s.loadRole(ctx, tx, roleID, &role)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEvent(audit.EventTypeRoleCreate, audit.ResourceRole, role.ID).
		With("name", role.Name).
		With("permission_ids", role.PermissionIDs()))
	return role, nil
}

// UpdateRole renames a custom role of orgID and replaces its permissions in
// one transaction. Readers never see the role without permissions midway.
func (s *Service) UpdateRole(ctx context.Context, roleID, orgID int64, name string, permissionIDs []int64) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	ids := uniqueIDs(permissionIDs)

	var role *Role
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getCustomRole(ctx, tx, roleID, orgID); err != nil {
			return err
		}
		if err := checkPermissionIDs(ctx, tx, ids); err != nil {
			return err
		}
		if err := replaceRolePermissions(ctx, tx, roleID, ids); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE roles SET name = $1, updated_at = $2 WHERE id = $3`,
			name, time.Now().UTC(), roleID,
		); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.loadRole(ctx, tx, roleID, &role)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEvent(audit.EventTypeRoleUpdate, audit.ResourceRole, role.ID).
		With("name", role.Name).
		With("permission_ids", role.PermissionIDs()))
	return role, nil
}

// DeleteRole removes a custom role of orgID together with its permission
// links and user assignments.
func (s *Service) DeleteRole(ctx context.Context, roleID, orgID int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := getCustomRole(ctx, tx, roleID, orgID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("failed to unassign role: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.NewEvent(audit.EventTypeRoleDelete, audit.ResourceRole, roleID))
	return nil
}

// ListUsers returns the members of orgID with their roles
func (s *Service) ListUsers(ctx context.Context, orgID int64) ([]*UserWithRoles, error) {
	return listUsers(ctx, s.db, orgID, 0)
}

// UpdateUserRoles replaces the custom roles assigned to a member of orgID.
// The system role that follows the subscription is kept. The user's token
// version is not bumped; the new roles apply from their next login.
func (s *Service) UpdateUserRoles(ctx context.Context, userID, orgID int64, roleIDs []int64) (*UserWithRoles, error) {
	ids := uniqueIDs(roleIDs)

	var user *UserWithRoles
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := userInOrganization(ctx, tx, userID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUserNotFound
		}
		if err := checkCustomRoleIDs(ctx, tx, orgID, ids); err != nil {
			return err
		}
		if err := replaceUserCustomRoles(ctx, tx, userID, ids); err != nil {
			return err
		}

		users, err := listUsers(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return ErrUserNotFound
		}
		user = users[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEvent(audit.EventTypeUserRolesChange, audit.ResourceUser, userID).
		With("role_ids", ids))
	return user, nil
}

// ListSystemRoles returns every system role with its permissions
func (s *Service) ListSystemRoles(ctx context.Context) ([]*Role, error) {
	roles, err := listSystemRoles(ctx, s.db)
	if err != nil {
		return nil, err
	}
	perms, err := permissionsByRole(ctx, s.db, `r.is_system_role = TRUE`)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if p, ok := perms[role.ID]; ok {
			role.Permissions = p
		}
	}
	return roles, nil
}

// GetSystemRole returns a system role with its permissions
func (s *Service) GetSystemRole(ctx context.Context, roleID int64) (*Role, error) {
	role, err := getRole(ctx, s.db, roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSystemRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if !role.IsSystemRole {
		return nil, ErrSystemRoleNotFound
	}
	if role.Permissions, err = rolePermissions(ctx, s.db, roleID); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdatePermissionsForRole replaces the permissions of a system role and then
// invalidates the sessions of every user in an organization subscribed to the
// plan of the same name.
//
// The replacement is one transaction. The invalidation runs after commit and
// is best-effort: a failure there is logged and reported in
// SyncResult.InvalidationErr, and the call still succeeds.
func (s *Service) UpdatePermissionsForRole(ctx context.Context, roleID int64, permissionIDs []int64) (*SyncResult, error) {
	role, err := getRole(ctx, s.db, roleID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !role.IsSystemRole) {
		return nil, ErrSystemRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	ids := uniqueIDs(permissionIDs)

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := checkPermissionIDs(ctx, tx, ids); err != nil {
			return err
		}
		if err := replaceRolePermissions(ctx, tx, roleID, ids); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), roleID,
		); err != nil {
			return fmt.Errorf("failed to touch role: %w", err)
		}
		return s.loadRole(ctx, tx, roleID, &role)
	})
	if err != nil {
		s.metrics.PermissionSyncsTotal.WithLabelValues(syncFailed).Inc()
		return nil, err
	}

	result := &SyncResult{Role: role, AffectedOrganizations: []int64{}}
	status, err := s.invalidateSessionsForRole(ctx, result)
	if err != nil {
		result.InvalidationErr = &InvalidationError{RoleID: roleID, Err: err}
		status = syncInvalidationFailed
		s.log.WithError(err).WithFields(logrus.Fields{
			"role_id":   roleID,
			"role_name": role.Name,
		}).Error("system role permissions updated but session invalidation failed")
	}
	s.metrics.PermissionSyncsTotal.WithLabelValues(status).Inc()

	event := audit.NewEvent(audit.EventTypeSystemRoleSync, audit.ResourceRole, roleID).
		With("permission_ids", role.PermissionIDs()).
		With("affected_organizations", result.AffectedOrganizations).
		With("invalidated_users", result.InvalidatedUsers).
		With("invalidation", status)
	if result.InvalidationErr != nil {
		event.WithStatus(audit.StatusFailure).WithMessage(result.InvalidationErr.Error())
	}
	s.record(ctx, event)

	return result, nil
}

// invalidateSessionsForRole bumps token_version for every member of every
// organization holding a subscription to the plan named like the role.
func (s *Service) invalidateSessionsForRole(ctx context.Context, result *SyncResult) (string, error) {
	log := s.log.WithFields(logrus.Fields{
		"role_id":   result.Role.ID,
		"role_name": result.Role.Name,
	})

	planID, err := planIDByName(ctx, s.db, result.Role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("no subscription plan matches system role, sessions left as is")
		return syncNoPlan, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find plan: %w", err)
	}
	result.PlanID = &planID

	orgIDs, err := subscribedOrganizations(ctx, s.db, planID)
	if err != nil {
		return "", err
	}
	result.AffectedOrganizations = orgIDs

	n, err := BumpTokenVersions(ctx, s.db, orgIDs)
	if err != nil {
		return "", err
	}
	result.InvalidatedUsers = n
	s.metrics.TokenInvalidationsTotal.Add(float64(n))

	log.WithFields(logrus.Fields{
		"plan_id":       planID,
		"organizations": len(orgIDs),
		"users":         n,
	}).Info("sessions invalidated after system role change")
	return syncInvalidated, nil
}

// loadRole reads roleID and its permissions inside tx into dst
func (s *Service) loadRole(ctx context.Context, tx *sql.Tx, roleID int64, dst **Role) error {
	role, err := getRole(ctx, tx, roleID)
	if err != nil {
		return fmt.Errorf("failed to reload role: %w", err)
	}
	if role.Permissions, err = rolePermissions(ctx, tx, roleID); err != nil {
		return err
	}
	*dst = role
	return nil
}

// record stamps the acting user onto event and writes it
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if ac := auth.FromContext(ctx); ac != nil {
		event.ByUser(ac.UserID, ac.OrganizationID)
	}
	audit.Record(ctx, s.audit, event)
}
