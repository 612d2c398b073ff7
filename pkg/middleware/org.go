package middleware

import (
	"net/http"

	"github.com/contractguard/contractguard/pkg/httputil"
)

// RequireAuth rejects requests that reached it without a session
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthContext(r) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwner admits only the owner of the caller's organization.
// Super-admins pass as well.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := GetAuthContext(r)
		if ac == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !ac.IsOwner && !ac.IsSuperAdmin {
			httputil.WriteForbidden(w, "organization owner required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OrganizationID returns the caller's organization, or 0 without a session
func OrganizationID(r *http.Request) int64 {
	if ac := GetAuthContext(r); ac != nil {
		return ac.OrganizationID
	}
	return 0
}
