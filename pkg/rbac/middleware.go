package rbac

import (
	"context"
	"net/http"
	"strings"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
	"github.com/contractguard/contractguard/pkg/observability"
)

// Authorizer gates requests on the permissions embedded in the session
type Authorizer struct {
	metrics *observability.Metrics
	audit   audit.Logger
}

// NewAuthorizer creates a new permission gate
func NewAuthorizer(metrics *observability.Metrics, auditLogger audit.Logger) *Authorizer {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Authorizer{metrics: metrics, audit: auditLogger}
}

// Allowed is the gate's predicate. A caller without a permission set is
// denied; a super-admin is allowed whatever the set holds; everyone else
// needs one of the listed permissions.
func Allowed(ac *auth.AuthContext, permissions ...string) bool {
	if ac == nil || ac.Permissions == nil {
		return false
	}
	if ac.IsSuperAdmin {
		return true
	}
	for _, p := range permissions {
		if ac.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// Can requires the given permission
func (a *Authorizer) Can(permission string) func(http.Handler) http.Handler {
	return a.CanAny(permission)
}

// CanAny requires at least one of the given permissions
func (a *Authorizer) CanAny(permissions ...string) func(http.Handler) http.Handler {
	label := strings.Join(permissions, "|")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := middleware.GetAuthContext(r)
			if !Allowed(ac, permissions...) {
				a.deny(r.Context(), ac, label)
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin admits platform super-admins only
func (a *Authorizer) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := middleware.GetAuthContext(r)
		if ac == nil || !ac.IsSuperAdmin {
			a.deny(r.Context(), ac, "super_admin")
			httputil.WriteForbidden(w, "super admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authorizer) deny(ctx context.Context, ac *auth.AuthContext, permission string) {
	a.metrics.AuthzDeniedTotal.WithLabelValues(permission).Inc()

	event := audit.NewEvent(audit.EventTypeAccessDenied, "", 0).
		WithStatus(audit.StatusDenied).
		With("permission", permission)
	if ac != nil {
		event.ByUser(ac.UserID, ac.OrganizationID)
	}
	audit.Record(ctx, a.audit, event)
}
