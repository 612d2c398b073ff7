package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
)

type apiClient struct {
	t      *testing.T
	router *mux.Router
}

func newAPIClient(t *testing.T, w *tenancy, ac *auth.AuthContext) *apiClient {
	svc, _, _ := newTestService(t, w.db)
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(auth.WithAuthContext(r.Context(), ac)))
		})
	})
	NewHandlers(svc, NewAuthorizer(nil, nil)).RegisterRoutes(router)
	return &apiClient{t: t, router: router}
}

func (c *apiClient) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func roleAdmin(w *tenancy, userID, orgID int64) *auth.AuthContext {
	return &auth.AuthContext{
		UserID:         userID,
		OrganizationID: orgID,
		Permissions: auth.NewPermissionSet(
			PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete,
			PermUserRead, PermUserManageRoles,
		),
	}
}

func TestHandlers_RoleLifecycle(t *testing.T) {
	w := setupTenancy(t)
	c := newAPIClient(t, w, roleAdmin(w, w.alice, w.org1))

	rec := c.do("POST", "/roles", RoleRequest{Name: "Reviewer", PermissionIDs: w.ids(PermContractViewAll)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Reviewer", created.Name)

	rec = c.do("GET", "/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []RoleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = c.do("PATCH", fmt.Sprintf("/roles/%d", created.ID), RoleRequest{Name: "Reviewer", PermissionIDs: []int64{}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Empty(t, updated.Permissions)

	rec = c.do("GET", fmt.Sprintf("/roles/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = c.do("DELETE", fmt.Sprintf("/roles/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do("GET", fmt.Sprintf("/roles/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_CrossOrganizationIsNotFound(t *testing.T) {
	w := setupTenancy(t)
	foreign := sqlitetest.InsertCustomRole(t, w.db, w.org2, "Globex Only")
	c := newAPIClient(t, w, roleAdmin(w, w.alice, w.org1))

	for _, method := range []string{"GET", "DELETE"} {
		rec := c.do(method, fmt.Sprintf("/roles/%d", foreign), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.JSONEq(t, `{"error":"role not found"}`, rec.Body.String())
	}
	rec := c.do("PATCH", fmt.Sprintf("/roles/%d", foreign), RoleRequest{Name: "x", PermissionIDs: []int64{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_Validation(t *testing.T) {
	w := setupTenancy(t)
	c := newAPIClient(t, w, roleAdmin(w, w.alice, w.org1))

	rec := c.do("POST", "/roles", map[string]interface{}{"name": "NoPerms"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do("POST", "/roles", map[string]interface{}{"name": "Bad", "permissionIds": "all"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do("POST", "/roles", RoleRequest{Name: "Ghost", PermissionIDs: []int64{99999}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do("GET", "/roles/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do("PATCH", fmt.Sprintf("/users/%d/roles", w.bob), map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Users(t *testing.T) {
	w := setupTenancy(t)
	reviewer := sqlitetest.InsertCustomRole(t, w.db, w.org1, "Reviewer")
	c := newAPIClient(t, w, roleAdmin(w, w.alice, w.org1))

	rec := c.do("PATCH", fmt.Sprintf("/users/%d/roles", w.bob), UserRolesRequest{RoleIDs: []int64{reviewer}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user UserWithRoles
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Len(t, user.Roles, 2)

	rec = c.do("PATCH", fmt.Sprintf("/users/%d/roles", w.carol), UserRolesRequest{RoleIDs: []int64{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do("GET", "/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []UserWithRoles
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)
}

func TestHandlers_PermissionGate(t *testing.T) {
	w := setupTenancy(t)
	c := newAPIClient(t, w, &auth.AuthContext{
		UserID:         w.bob,
		OrganizationID: w.org1,
		Permissions:    auth.NewPermissionSet(PermRoleRead),
	})

	assert.Equal(t, http.StatusOK, c.do("GET", "/permissions", nil).Code)
	assert.Equal(t, http.StatusOK, c.do("GET", "/roles", nil).Code)
	assert.Equal(t, http.StatusForbidden, c.do("POST", "/roles", RoleRequest{Name: "x", PermissionIDs: []int64{}}).Code)
	assert.Equal(t, http.StatusForbidden, c.do("GET", "/users", nil).Code)
	assert.Equal(t, http.StatusForbidden, c.do("GET", "/admin/system-roles", nil).Code)
}

func TestHandlers_SystemRoles(t *testing.T) {
	w := setupTenancy(t)
	c := newAPIClient(t, w, &auth.AuthContext{
		UserID:         w.dave,
		OrganizationID: w.org3,
		IsSuperAdmin:   true,
		Permissions:    auth.NewPermissionSet(),
	})

	rec := c.do("GET", "/admin/system-roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	assert.Len(t, roles, 2)

	rec = c.do("GET", fmt.Sprintf("/admin/system-roles/%d", w.proRole), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = c.do("PATCH", fmt.Sprintf("/admin/system-roles/%d/permissions", w.proRole),
		SystemRolePermissionsRequest{PermissionIDs: w.ids(PermDashboardView)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(3), result.InvalidatedUsers)
	assert.ElementsMatch(t, []int64{w.org1, w.org2}, result.AffectedOrganizations)

	custom := sqlitetest.InsertCustomRole(t, w.db, w.org1, "Reviewer")
	rec = c.do("PATCH", fmt.Sprintf("/admin/system-roles/%d/permissions", custom),
		SystemRolePermissionsRequest{PermissionIDs: []int64{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"system role not found"}`, rec.Body.String())
}
