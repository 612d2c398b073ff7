package orgs

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
)

// Handlers provides HTTP handlers for the caller's organization
type Handlers struct {
	service *Service
	// read gates GET /organization, normally a permission check
	read func(http.Handler) http.Handler
}

// NewHandlers creates new organization handlers. read wraps the profile
// endpoint; nil only requires a session.
func NewHandlers(service *Service, read func(http.Handler) http.Handler) *Handlers {
	if read == nil {
		read = middleware.RequireAuth
	}
	return &Handlers{service: service, read: read}
}

// RegisterRoutes registers organization routes. The router must already
// carry the session middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/organization", h.read(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	router.Handle("/organization", middleware.RequireOwner(http.HandlerFunc(h.RenameOrganization))).Methods("PATCH")
	router.Handle("/organization/audit", middleware.RequireOwner(http.HandlerFunc(h.ListAuditEvents))).Methods("GET")
}

// GetOrganization handles GET /organization
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.GetOrganization(r.Context(), middleware.OrganizationID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// RenameOrganization handles PATCH /organization
func (h *Handlers) RenameOrganization(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	org, err := h.service.Rename(r.Context(), middleware.GetAuthContext(r), req.Name)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// ListAuditEvents handles GET /organization/audit?limit=N
func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	events, err := h.service.ListAuditEvents(r.Context(), middleware.OrganizationID(r), limit)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
