// Package rbac provides role-based access control for organizations.
//
// # Overview
//
// Permissions are a fixed catalog of named capabilities such as
// "contract.create" or "role.read". Roles bundle permissions and come in two
// kinds:
//
//   - Custom roles belong to one organization and are managed by its members
//     holding the role.* permissions.
//   - System roles have no organization. Each one mirrors the subscription
//     plan with the same name and is edited only by platform super-admins.
//
// Users hold any number of roles. Their effective permissions are the union
// of every assigned role's permissions, computed by Resolver when a session
// is issued and embedded in the token together with the user's token_version.
//
// # Custom Roles
//
// Every custom-role lookup is scoped by organization. A role of another
// organization, and any system role, reads as ErrRoleNotFound:
//
//	role, err := service.GetRole(ctx, roleID, ac.OrganizationID)
//
// UpdateRole replaces the permission rows and the name in one transaction.
//
// # System Role Sync
//
// UpdatePermissionsForRole is the one cross-entity path:
//
//	result, err := service.UpdatePermissionsForRole(ctx, roleID, permissionIDs)
//
//  1. The role must be a system role, otherwise ErrSystemRoleNotFound.
//  2. Its permission rows are replaced in one transaction.
//  3. After commit, the plan with the same name is looked up, the
//     organizations subscribed to it are collected, and token_version is
//     bumped by one for all their users in a single statement.
//
// Step 3 is best-effort. If it fails the change stays committed, the error
// is logged, and result.InvalidationErr carries it.
//
// # Authorization
//
//	authz := rbac.NewAuthorizer(metrics, auditLogger)
//	router.Handle("/roles", authz.Can(rbac.PermRoleRead)(handler))
//
// Requests without a permission set are denied. Super-admins bypass the
// check. Denials answer 403 with {"error": "..."}.
//
// # Related Packages
//
//   - pkg/auth: sessions carrying the resolved permissions
//   - pkg/middleware: session validation against token_version
//   - pkg/billing: moves organizations between system roles on plan change
package rbac
