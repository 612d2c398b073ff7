package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
	"github.com/contractguard/contractguard/pkg/observability"
)

// tenancy is a small multi-tenant world:
//
//	plan/system role "Pro"   {contract.create, contract.view.all}  org1, org2
//	plan/system role "Basic" {contract.view.own}                   org3
type tenancy struct {
	db    *sql.DB
	perms map[string]int64

	org1, org2, org3   int64
	proRole, basicRole int64
	proPlan, basicPlan int64
	alice, bob, carol  int64 // org1, org1, org2
	dave               int64 // org3
}

func setupTenancy(t *testing.T) *tenancy {
	t.Helper()
	db := sqlitetest.New(t)
	w := &tenancy{db: db, perms: make(map[string]int64)}

	for _, entry := range Catalog {
		w.perms[entry.ActionName] = sqlitetest.InsertPermission(t, db, entry.ActionName)
	}

	w.proPlan = sqlitetest.InsertPlan(t, db, "Pro", 4900)
	w.basicPlan = sqlitetest.InsertPlan(t, db, "Basic", 0)
	w.proRole = sqlitetest.InsertSystemRole(t, db, "Pro")
	w.basicRole = sqlitetest.InsertSystemRole(t, db, "Basic")
	sqlitetest.Grant(t, db, w.proRole, w.perms[PermContractCreate], w.perms[PermContractViewAll])
	sqlitetest.Grant(t, db, w.basicRole, w.perms[PermContractViewOwn])

	w.org1 = sqlitetest.InsertOrg(t, db, "Acme")
	w.org2 = sqlitetest.InsertOrg(t, db, "Globex")
	w.org3 = sqlitetest.InsertOrg(t, db, "Initech")
	sqlitetest.InsertSubscription(t, db, w.org1, w.proPlan, "active")
	sqlitetest.InsertSubscription(t, db, w.org2, w.proPlan, "active")
	sqlitetest.InsertSubscription(t, db, w.org3, w.basicPlan, "active")

	w.alice = sqlitetest.InsertUser(t, db, w.org1, "alice@acme.test", sqlitetest.UserOpts{IsOwner: true, TokenVersion: 3})
	w.bob = sqlitetest.InsertUser(t, db, w.org1, "bob@acme.test", sqlitetest.UserOpts{})
	w.carol = sqlitetest.InsertUser(t, db, w.org2, "carol@globex.test", sqlitetest.UserOpts{TokenVersion: 7})
	w.dave = sqlitetest.InsertUser(t, db, w.org3, "dave@initech.test", sqlitetest.UserOpts{TokenVersion: 1})

	sqlitetest.Assign(t, db, w.alice, w.proRole)
	sqlitetest.Assign(t, db, w.bob, w.proRole)
	sqlitetest.Assign(t, db, w.carol, w.proRole)
	sqlitetest.Assign(t, db, w.dave, w.basicRole)
	return w
}

func (w *tenancy) ids(names ...string) []int64 {
	out := make([]int64, len(names))
	for i, n := range names {
		out[i] = w.perms[n]
	}
	return out
}

func (w *tenancy) versions(t *testing.T) map[int64]int {
	t.Helper()
	out := make(map[int64]int)
	for _, id := range []int64{w.alice, w.bob, w.carol, w.dave} {
		out[id] = sqlitetest.TokenVersion(t, w.db, id)
	}
	return out
}

func newTestService(t *testing.T, db *sql.DB) (*Service, *observability.Metrics, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	metrics := observability.NewNopMetrics()
	return NewService(db, nil, metrics, log), metrics, hook
}

func actingAs(userID, orgID int64) context.Context {
	return auth.WithAuthContext(context.Background(), &auth.AuthContext{UserID: userID, OrganizationID: orgID})
}

func permissionNames(role *Role) []string {
	names := make([]string, len(role.Permissions))
	for i, p := range role.Permissions {
		names[i] = p.ActionName
	}
	return names
}
