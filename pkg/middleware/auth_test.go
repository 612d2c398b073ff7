package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/contextkeys"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type versionMap map[int64]int

func (v versionMap) TokenVersion(_ context.Context, userID int64) (int, error) {
	version, ok := v[userID]
	if !ok {
		return 0, auth.ErrUserNotFound
	}
	return version, nil
}

type failingVersions struct{}

func (failingVersions) TokenVersion(context.Context, int64) (int, error) {
	return 0, errors.New("connection refused")
}

func issueToken(t *testing.T, issuer *auth.SessionIssuer, userID int64, version int) string {
	t.Helper()
	session, err := issuer.Issue(&auth.AuthContext{
		UserID:         userID,
		OrganizationID: 7,
		Email:          "member@acme.test",
		TokenVersion:   version,
		Permissions:    auth.NewPermissionSet("contract.view.own"),
	})
	require.NoError(t, err)
	return session.Token
}

func serveWithSession(m *SessionMiddleware, header string) (*httptest.ResponseRecorder, *auth.AuthContext, string) {
	var seen *auth.AuthContext
	var userID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthContext(r)
		userID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/contracts", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, seen, userID
}

func TestSessionMiddleware_AcceptsCurrentVersion(t *testing.T) {
	log, _ := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, versionMap{42: 3}, log)

	w, ac, userID := serveWithSession(m, "Bearer "+issueToken(t, issuer, 42, 3))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ac)
	assert.Equal(t, int64(42), ac.UserID)
	assert.True(t, ac.Permissions.Has("contract.view.own"))
	assert.Equal(t, "42", userID)
}

func TestSessionMiddleware_RejectsStaleVersion(t *testing.T) {
	log, _ := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, versionMap{42: 4}, log)

	w, ac, _ := serveWithSession(m, "Bearer "+issueToken(t, issuer, 42, 3))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session expired")
	assert.Nil(t, ac)
}

func TestSessionMiddleware_RejectsDeletedUser(t *testing.T) {
	log, _ := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, versionMap{}, log)

	w, _, _ := serveWithSession(m, "Bearer "+issueToken(t, issuer, 42, 0))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session expired")
}

func TestSessionMiddleware_BadHeaders(t *testing.T) {
	log, _ := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, versionMap{42: 0}, log)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty token", "Bearer ", "invalid authorization header format"},
		{"garbage token", "Bearer not-a-jwt", "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ac, _ := serveWithSession(m, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			assert.Nil(t, ac)
		})
	}
}

func TestSessionMiddleware_VersionLookupFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, failingVersions{}, log)

	w, _, _ := serveWithSession(m, "Bearer "+issueToken(t, issuer, 42, 0))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "failed to load token version", hook.LastEntry().Message)
}

func TestSessionMiddleware_RejectsLoggedOutSession(t *testing.T) {
	log, _ := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	revoked := auth.NewMemoryRevocationList()
	m := NewSessionMiddleware(issuer, versionMap{42: 3}, log).WithRevocationList(revoked)

	loggedOut := issueToken(t, issuer, 42, 3)
	other := issueToken(t, issuer, 42, 3)

	ac, err := issuer.Parse(loggedOut)
	require.NoError(t, err)
	require.NoError(t, revoked.Revoke(context.Background(), ac.TokenID, ac.ExpiresAt))

	w, seen, _ := serveWithSession(m, "Bearer "+loggedOut)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session logged out")
	assert.Nil(t, seen)

	w, seen, _ = serveWithSession(m, "Bearer "+other)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return nil }

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestSessionMiddleware_RevocationLookupFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	issuer := auth.NewSessionIssuer(testSecret, "contractguard", time.Hour)
	m := NewSessionMiddleware(issuer, versionMap{42: 0}, log).WithRevocationList(failingRevocations{})

	w, _, _ := serveWithSession(m, "Bearer "+issueToken(t, issuer, 42, 0))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "failed to check session revocation", hook.LastEntry().Message)
}
