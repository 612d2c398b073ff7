package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
)

// Handlers provides HTTP handlers for RBAC administration
type Handlers struct {
	service *Service
	authz   *Authorizer
}

// NewHandlers creates new RBAC handlers
func NewHandlers(service *Service, authz *Authorizer) *Handlers {
	return &Handlers{
		service: service,
		authz:   authz,
	}
}

// RegisterRoutes registers all RBAC routes. The router must already carry
// the session middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	can := func(permission string, fn http.HandlerFunc) http.Handler {
		return h.authz.Can(permission)(fn)
	}

	// Permission catalog
	router.Handle("/permissions", can(PermRoleRead, h.ListPermissions)).Methods("GET")

	// Custom roles
	router.Handle("/roles", can(PermRoleRead, h.ListRoles)).Methods("GET")
	router.Handle("/roles", can(PermRoleCreate, h.CreateRole)).Methods("POST")
	router.Handle("/roles/{id}", can(PermRoleRead, h.GetRole)).Methods("GET")
	router.Handle("/roles/{id}", can(PermRoleUpdate, h.UpdateRole)).Methods("PATCH")
	router.Handle("/roles/{id}", can(PermRoleDelete, h.DeleteRole)).Methods("DELETE")

	// Members
	router.Handle("/users", can(PermUserRead, h.ListUsers)).Methods("GET")
	router.Handle("/users/{userId}/roles", can(PermUserManageRoles, h.UpdateUserRoles)).Methods("PATCH")

	// System roles, super-admin only
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(h.authz.RequireSuperAdmin)
	admin.HandleFunc("/system-roles", h.ListSystemRoles).Methods("GET")
	admin.HandleFunc("/system-roles/{roleId}", h.GetSystemRole).Methods("GET")
	admin.HandleFunc("/system-roles/{roleId}/permissions", h.UpdateSystemRolePermissions).Methods("PATCH")
}

// ListPermissions handles GET /permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// ListRoles handles GET /roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), middleware.OrganizationID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole handles POST /roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	role, err := h.service.CreateRole(r.Context(), middleware.OrganizationID(r), req.Name, req.PermissionIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole handles GET /roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.service.GetRole(r.Context(), roleID, middleware.OrganizationID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole handles PATCH /roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req RoleRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	role, err := h.service.UpdateRole(r.Context(), roleID, middleware.OrganizationID(r), req.Name, req.PermissionIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), roleID, middleware.OrganizationID(r)); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListUsers handles GET /users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), middleware.OrganizationID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// UpdateUserRoles handles PATCH /users/{userId}/roles
func (h *Handlers) UpdateUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userId")
	if !ok {
		return
	}
	var req UserRolesRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	user, err := h.service.UpdateUserRoles(r.Context(), userID, middleware.OrganizationID(r), req.RoleIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// ListSystemRoles handles GET /admin/system-roles
func (h *Handlers) ListSystemRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListSystemRoles(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetSystemRole handles GET /admin/system-roles/{roleId}
func (h *Handlers) GetSystemRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleId")
	if !ok {
		return
	}

	role, err := h.service.GetSystemRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateSystemRolePermissions handles PATCH /admin/system-roles/{roleId}/permissions
func (h *Handlers) UpdateSystemRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleId")
	if !ok {
		return
	}
	var req SystemRolePermissionsRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	result, err := h.service.UpdatePermissionsForRole(r.Context(), roleID, req.PermissionIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
