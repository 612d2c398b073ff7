package contracts

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
	"github.com/contractguard/contractguard/pkg/rbac"
)

// Handlers provides HTTP handlers for contracts and the dashboard
type Handlers struct {
	service *Service
	authz   *rbac.Authorizer
}

// NewHandlers creates new contract handlers
func NewHandlers(service *Service, authz *rbac.Authorizer) *Handlers {
	return &Handlers{
		service: service,
		authz:   authz,
	}
}

// RegisterRoutes registers contract routes. The router must already carry
// the session middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	view := h.authz.CanAny(rbac.PermContractViewAll, rbac.PermContractViewOwn)

	router.Handle("/contracts", h.authz.Can(rbac.PermContractCreate)(http.HandlerFunc(h.Create))).Methods("POST")
	router.Handle("/contracts", view(http.HandlerFunc(h.List))).Methods("GET")
	router.Handle("/contracts/{id}", view(http.HandlerFunc(h.Get))).Methods("GET")
	router.Handle("/contracts/{id}", h.authz.Can(rbac.PermContractUpdate)(http.HandlerFunc(h.Update))).Methods("PATCH")
	router.Handle("/contracts/{id}", h.authz.Can(rbac.PermContractDelete)(http.HandlerFunc(h.Delete))).Methods("DELETE")

	router.Handle("/dashboard/stats", h.authz.Can(rbac.PermDashboardView)(http.HandlerFunc(h.Stats))).Methods("GET")
}

// scopeFor limits callers without contract.view.all to their own contracts
func scopeFor(ac *auth.AuthContext) Scope {
	scope := Scope{OrganizationID: ac.OrganizationID}
	if !rbac.Allowed(ac, rbac.PermContractViewAll) {
		userID := ac.UserID
		scope.OwnerID = &userID
	}
	return scope
}

// Create handles POST /contracts
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), middleware.GetAuthContext(r), &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, c)
}

// List handles GET /contracts?status=&riskLevel=&page=&pageSize=
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	pageSize, err := httputil.ParseQueryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	filter := ListFilter{
		Status:    Status(httputil.ParseQueryString(r, "status", "")),
		RiskLevel: RiskLevel(httputil.ParseQueryString(r, "riskLevel", "")),
		Page:      page,
		PageSize:  pageSize,
	}
	result, err := h.service.List(r.Context(), scopeFor(middleware.GetAuthContext(r)), filter)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// Get handles GET /contracts/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), scopeFor(middleware.GetAuthContext(r)), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// Update handles PATCH /contracts/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), middleware.GetAuthContext(r), id, &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// Delete handles DELETE /contracts/{id}
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), middleware.GetAuthContext(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Stats handles GET /dashboard/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), scopeFor(middleware.GetAuthContext(r)))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
