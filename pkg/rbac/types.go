package rbac

import (
	"time"
)

// Permission is one named capability from the catalog
type Permission struct {
	ID          int64  `json:"id"`
	ActionName  string `json:"actionName"`
	Description string `json:"description"`
}

// Role is a named bundle of permissions. Custom roles belong to one
// organization; system roles have no organization and mirror a
// subscription plan of the same name.
type Role struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	OrganizationID *int64       `json:"organizationId"`
	IsSystemRole   bool         `json:"isSystemRole"`
	Permissions    []Permission `json:"permissions"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// PermissionIDs returns the ids of the role's permissions
func (r *Role) PermissionIDs() []int64 {
	ids := make([]int64, len(r.Permissions))
	for i, p := range r.Permissions {
		ids[i] = p.ID
	}
	return ids
}

// RoleSummary is a custom role annotated with the number of assigned users
type RoleSummary struct {
	Role
	UserCount int `json:"userCount"`
}

// RoleRef is the short form of a role attached to a user
type RoleRef struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IsSystemRole bool   `json:"isSystemRole"`
}

// UserWithRoles is an organization member and the roles assigned to them
type UserWithRoles struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organizationId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	IsOwner        bool      `json:"isOwner"`
	IsSuperAdmin   bool      `json:"isSuperAdmin"`
	Roles          []RoleRef `json:"roles"`
}

// RoleRequest is the body of POST /roles and PATCH /roles/{id}
type RoleRequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	PermissionIDs []int64 `json:"permissionIds" validate:"required,dive,gt=0"`
}

// UserRolesRequest is the body of PATCH /users/{userId}/roles
type UserRolesRequest struct {
	RoleIDs []int64 `json:"roleIds" validate:"required,dive,gt=0"`
}

// SystemRolePermissionsRequest is the body of
// PATCH /admin/system-roles/{roleId}/permissions
type SystemRolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required,dive,gt=0"`
}

// SyncResult describes a committed system-role permission update and the
// session invalidation that followed it.
type SyncResult struct {
	Role                  *Role   `json:"role"`
	PlanID                *int64  `json:"planId"`
	AffectedOrganizations []int64 `json:"affectedOrganizations"`
	InvalidatedUsers      int64   `json:"invalidatedUsers"`

	// InvalidationErr is set when the fan-out failed after the permission
	// change committed. The update itself still stands.
	InvalidationErr error `json:"-"`
}

// Invalidated reports whether the fan-out completed
func (r *SyncResult) Invalidated() bool {
	return r.InvalidationErr == nil
}
