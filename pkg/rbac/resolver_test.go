package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
)

func TestResolver_UnionOfAssignedRoles(t *testing.T) {
	w := setupTenancy(t)
	ctx := context.Background()

	reviewer := sqlitetest.InsertCustomRole(t, w.db, w.org1, "Reviewer")
	sqlitetest.Grant(t, w.db, reviewer, w.perms[PermContractViewAll], w.perms[PermDashboardView])
	unassigned := sqlitetest.InsertCustomRole(t, w.db, w.org1, "Billing")
	sqlitetest.Grant(t, w.db, unassigned, w.perms[PermBillingManage])
	sqlitetest.Assign(t, w.db, w.bob, reviewer)

	ac, err := NewResolver(w.db).Resolve(ctx, w.bob)
	require.NoError(t, err)
	require.NotNil(t, ac)

	// contract.view.all comes from both roles and collapses
	assert.ElementsMatch(t,
		[]string{PermContractCreate, PermContractViewAll, PermDashboardView},
		ac.Permissions.Names())
	assert.False(t, ac.Permissions.Has(PermBillingManage))
	assert.Equal(t, w.org1, ac.OrganizationID)
	assert.Equal(t, "bob@acme.test", ac.Email)
}

func TestResolver_OwnershipGrantsNothing(t *testing.T) {
	w := setupTenancy(t)
	owner := sqlitetest.InsertUser(t, w.db, w.org1, "root@acme.test", sqlitetest.UserOpts{IsOwner: true, TokenVersion: 4})

	ac, err := NewResolver(w.db).Resolve(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, ac)

	assert.True(t, ac.IsOwner)
	assert.Equal(t, 4, ac.TokenVersion)
	assert.NotNil(t, ac.Permissions)
	assert.Empty(t, ac.Permissions)
}

func TestResolver_CarriesFlags(t *testing.T) {
	w := setupTenancy(t)
	admin := sqlitetest.InsertUser(t, w.db, w.org3, "ops@initech.test", sqlitetest.UserOpts{IsSuperAdmin: true})

	ac, err := NewResolver(w.db).Resolve(context.Background(), admin)
	require.NoError(t, err)
	assert.True(t, ac.IsSuperAdmin)
	assert.False(t, ac.IsOwner)
}

func TestResolver_MissingUser(t *testing.T) {
	w := setupTenancy(t)

	ac, err := NewResolver(w.db).Resolve(context.Background(), 4242)
	require.NoError(t, err)
	assert.Nil(t, ac)
}
