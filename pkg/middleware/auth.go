package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/contextkeys"
	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/observability"
)

// TokenVersionSource returns the current token version of a user
type TokenVersionSource interface {
	TokenVersion(ctx context.Context, userID int64) (int, error)
}

// SessionMiddleware authenticates requests carrying a bearer session token
type SessionMiddleware struct {
	issuer   *auth.SessionIssuer
	versions TokenVersionSource
	revoked  auth.RevocationList
	log      logrus.FieldLogger
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(issuer *auth.SessionIssuer, versions TokenVersionSource, log logrus.FieldLogger) *SessionMiddleware {
	return &SessionMiddleware{
		issuer:   issuer,
		versions: versions,
		log:      log,
	}
}

// WithRevocationList makes the middleware reject sessions ended by logout
func (m *SessionMiddleware) WithRevocationList(list auth.RevocationList) *SessionMiddleware {
	m.revoked = list
	return m
}

// Handler wraps an HTTP handler with session authentication
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ac, err := m.issuer.Parse(parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		if m.revoked != nil {
			revoked, err := m.revoked.IsRevoked(r.Context(), ac.TokenID)
			if err != nil {
				m.log.WithError(err).WithField("user_id", ac.UserID).Error("failed to check session revocation")
				httputil.WriteServiceError(w, r, err)
				return
			}
			if revoked {
				httputil.WriteServiceError(w, r, auth.ErrSessionRevoked)
				return
			}
		}

		current, err := m.versions.TokenVersion(r.Context(), ac.UserID)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			httputil.WriteServiceError(w, r, auth.ErrStaleToken)
			return
		case err != nil:
			m.log.WithError(err).WithField("user_id", ac.UserID).Error("failed to load token version")
			httputil.WriteServiceError(w, r, err)
			return
		case current != ac.TokenVersion:
			observability.FromContext(r.Context()).WithFields(logrus.Fields{
				"user_id":        ac.UserID,
				"token_version":  ac.TokenVersion,
				"stored_version": current,
			}).Debug("rejected stale session")
			httputil.WriteServiceError(w, r, auth.ErrStaleToken)
			return
		}

		ctx := auth.WithAuthContext(r.Context(), ac)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(ac.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return auth.FromContext(r.Context())
}
