package orgs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/auth"
)

func serve(t *testing.T, f *orgFixture, ac *auth.AuthContext, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ac != nil {
				r = r.WithContext(auth.WithAuthContext(r.Context(), ac))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandlers(f.svc, nil).RegisterRoutes(router)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_GetOrganization(t *testing.T) {
	f := newOrgFixture(t)
	member := &auth.AuthContext{UserID: f.memberID, OrganizationID: f.orgID}

	rec := serve(t, f, member, "GET", "/organization", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var org Organization
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&org))
	assert.Equal(t, f.orgID, org.ID)
	assert.Equal(t, "Acme", org.Name)

	rec = serve(t, f, nil, "GET", "/organization", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlers_Rename(t *testing.T) {
	f := newOrgFixture(t)

	rec := serve(t, f, f.owner(), "PATCH", "/organization", map[string]string{"name": "Acme Two"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Acme Two"`)

	member := &auth.AuthContext{UserID: f.memberID, OrganizationID: f.orgID}
	rec = serve(t, f, member, "PATCH", "/organization", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, f, f.owner(), "PATCH", "/organization", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_AuditTrail(t *testing.T) {
	f := newOrgFixture(t)

	rec := serve(t, f, f.owner(), "PATCH", "/organization", map[string]string{"name": "Acme Two"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, f, f.owner(), "GET", "/organization/audit?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "org.rename", events[0]["eventType"])

	rec = serve(t, f, f.owner(), "GET", "/organization/audit?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	member := &auth.AuthContext{UserID: f.memberID, OrganizationID: f.orgID}
	rec = serve(t, f, member, "GET", "/organization/audit", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
