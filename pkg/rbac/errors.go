package rbac

import (
	"fmt"

	"github.com/contractguard/contractguard/pkg/apperrors"
)

var (
	// ErrRoleNotFound covers both a missing role and a role of another organization
	ErrRoleNotFound = apperrors.NotFound("role not found")
	// ErrUserNotFound covers both a missing user and a user of another organization
	ErrUserNotFound = apperrors.NotFound("user not found")
	// ErrSystemRoleNotFound is returned when a system-role operation targets a
	// missing role or a custom role
	ErrSystemRoleNotFound = apperrors.NotFound("system role not found")
	// ErrInvalidPermission is returned when a permission id is not in the catalog
	ErrInvalidPermission = apperrors.Invalid("unknown permission id")
)

// InvalidationError records a failed token-invalidation fan-out for a system
// role whose permission change already committed.
type InvalidationError struct {
	RoleID int64
	Err    error
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("token invalidation for system role %d failed: %v", e.RoleID, e.Err)
}

func (e *InvalidationError) Unwrap() error {
	return e.Err
}
