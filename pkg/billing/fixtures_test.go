package billing

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
	"github.com/contractguard/contractguard/pkg/observability"
)

const testWebhookSecret = "whsec_test"

// market has two plans, each with its system role, and two organizations on
// the Basic plan. acme's member also holds a custom role.
type market struct {
	db *sql.DB

	basicPlan, proPlan int64
	basicRole, proRole int64

	acme, globex     int64
	owner, member    int64
	outsider         int64
	reviewerRole     int64
	acmeSubscription int64
}

func setupMarket(t *testing.T) *market {
	t.Helper()
	db := sqlitetest.New(t)
	m := &market{db: db}

	view := sqlitetest.InsertPermission(t, db, "contract.view.own")
	create := sqlitetest.InsertPermission(t, db, "contract.create")

	m.basicPlan = sqlitetest.InsertPlan(t, db, "Basic", 0)
	m.proPlan = sqlitetest.InsertPlan(t, db, "Pro", 4900)
	m.basicRole = sqlitetest.InsertSystemRole(t, db, "Basic")
	m.proRole = sqlitetest.InsertSystemRole(t, db, "Pro")
	sqlitetest.Grant(t, db, m.basicRole, view)
	sqlitetest.Grant(t, db, m.proRole, view, create)

	m.acme = sqlitetest.InsertOrg(t, db, "Acme")
	m.globex = sqlitetest.InsertOrg(t, db, "Globex")
	m.owner = sqlitetest.InsertUser(t, db, m.acme, "owner@acme.test", sqlitetest.UserOpts{IsOwner: true, TokenVersion: 2})
	m.member = sqlitetest.InsertUser(t, db, m.acme, "member@acme.test", sqlitetest.UserOpts{})
	m.outsider = sqlitetest.InsertUser(t, db, m.globex, "owner@globex.test", sqlitetest.UserOpts{IsOwner: true, TokenVersion: 4})

	m.acmeSubscription = sqlitetest.InsertSubscription(t, db, m.acme, m.basicPlan, "active")
	sqlitetest.InsertSubscription(t, db, m.globex, m.basicPlan, "active")
	sqlitetest.Assign(t, db, m.owner, m.basicRole)
	sqlitetest.Assign(t, db, m.member, m.basicRole)
	sqlitetest.Assign(t, db, m.outsider, m.basicRole)

	m.reviewerRole = sqlitetest.InsertCustomRole(t, db, m.acme, "Reviewer")
	sqlitetest.Assign(t, db, m.member, m.reviewerRole)
	return m
}

func newTestService(t *testing.T, db *sql.DB) (*Service, *observability.Metrics, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	metrics := observability.NewNopMetrics()
	return NewService(db, "Basic", testWebhookSecret, nil, metrics, log), metrics, hook
}

// systemRole returns the name of the system role userID holds
func systemRole(t *testing.T, db *sql.DB, userID int64) string {
	t.Helper()
	var name string
	require.NoError(t, db.QueryRow(`
		SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.is_system_role = TRUE`, userID,
	).Scan(&name))
	return name
}

func subscriptionStatus(t *testing.T, db *sql.DB, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow("SELECT status FROM subscriptions WHERE id = $1", id).Scan(&status))
	return status
}

func signedEvent(t *testing.T, event WebhookEvent) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, Sign(payload, testWebhookSecret)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
