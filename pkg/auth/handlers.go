package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/observability"
)

const (
	oidcStateCookie = "cg_oidc_state"
	oidcStateMaxAge = 600
)

// Handlers provides HTTP handlers for sessions
type Handlers struct {
	service  *Service
	identity IdentityProvider
}

// NewHandlers creates new session handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterPublicRoutes registers the unauthenticated routes. loginLimiter
// wraps the login endpoint; pass nil to disable limiting.
func (h *Handlers) RegisterPublicRoutes(router *mux.Router, loginLimiter func(http.Handler) http.Handler) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")

	var login http.Handler = http.HandlerFunc(h.Login)
	if loginLimiter != nil {
		login = loginLimiter(login)
	}
	router.Handle("/auth/login", login).Methods("POST")

	if h.identity != nil {
		router.HandleFunc("/auth/oidc/login", h.OIDCLogin).Methods("GET")
		router.HandleFunc("/auth/oidc/callback", h.OIDCCallback).Methods("GET")
	}
}

// WithIdentityProvider enables single sign-on through provider
func (h *Handlers) WithIdentityProvider(provider IdentityProvider) *Handlers {
	h.identity = provider
	return h
}

// RegisterRoutes registers routes that need a session
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.Me).Methods("GET")
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

type meResponse struct {
	*AuthContext
	Permissions []string `json:"permissions"`
}

// Me handles GET /auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	ac := FromContext(r.Context())
	if ac == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, meResponse{AuthContext: ac, Permissions: ac.Permissions.Names()})
}

// Logout handles POST /auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ac := FromContext(r.Context())
	if ac == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.service.Logout(r.Context(), ac); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// OIDCLogin handles GET /auth/oidc/login by redirecting to the identity provider
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/auth/oidc",
		MaxAge:   oidcStateMaxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.identity.AuthCodeURL(state), http.StatusFound)
}

// OIDCCallback handles GET /auth/oidc/callback
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		httputil.WriteUnauthorized(w, "identity provider denied login: "+reason)
		return
	}

	cookie, err := r.Cookie(oidcStateCookie)
	state := query.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteBadRequest(w, "invalid login state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    "",
		Path:     "/auth/oidc",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := query.Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	identity, err := h.identity.Exchange(r.Context(), code)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("identity provider login failed")
		httputil.WriteServiceError(w, r, err)
		return
	}

	session, err := h.service.LoginWithIdentity(r.Context(), identity)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}
