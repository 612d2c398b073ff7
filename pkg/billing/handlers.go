package billing

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
	"github.com/contractguard/contractguard/pkg/rbac"
)

// maxWebhookBody bounds the webhook payload read into memory
const maxWebhookBody = 1 << 20

// Handlers provides HTTP handlers for plans, subscriptions and the billing webhook
type Handlers struct {
	service *Service
	authz   *rbac.Authorizer
}

// NewHandlers creates new billing handlers
func NewHandlers(service *Service, authz *rbac.Authorizer) *Handlers {
	return &Handlers{
		service: service,
		authz:   authz,
	}
}

// RegisterPublicRoutes registers routes that need no session
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/webhooks/billing", h.Webhook).Methods("POST")
}

// RegisterRoutes registers subscription routes. The router must already
// carry the session middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/subscription", h.authz.Can(rbac.PermBillingView)(http.HandlerFunc(h.GetSubscription))).Methods("GET")
	router.Handle("/subscription", h.authz.Can(rbac.PermBillingManage)(http.HandlerFunc(h.ChangePlan))).Methods("POST")
}

// ListPlans handles GET /plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, plans)
}

// GetSubscription handles GET /subscription
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.GetSubscription(r.Context(), middleware.OrganizationID(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// ChangePlan handles POST /subscription
func (h *Handlers) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	change, err := h.service.ChangePlan(r.Context(), middleware.OrganizationID(r), req.PlanID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, change)
}

// Webhook handles POST /webhooks/billing
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
