package billing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/apperrors"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
	"github.com/contractguard/contractguard/pkg/rbac"
)

func TestListPlans(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Basic", plans[0].Name)
	assert.Equal(t, "Pro", plans[1].Name)
	assert.Equal(t, int64(4900), plans[1].PriceCents)
	assert.Equal(t, IntervalMonth, plans[1].BillingInterval)
}

func TestStartInitialSubscription(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)
	ctx := context.Background()

	orgID := sqlitetest.InsertOrg(t, m.db, "Initech")
	ownerID := sqlitetest.InsertUser(t, m.db, orgID, "owner@initech.test", sqlitetest.UserOpts{IsOwner: true})

	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		return svc.StartInitialSubscription(ctx, tx, orgID, ownerID)
	})
	require.NoError(t, err)

	sub, err := svc.GetSubscription(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Basic", sub.PlanName)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))
	assert.Equal(t, "Basic", systemRole(t, m.db, ownerID))
}

func TestStartInitialSubscription_MissingDefaults(t *testing.T) {
	m := setupMarket(t)
	ctx := context.Background()
	orgID := sqlitetest.InsertOrg(t, m.db, "Initech")

	log, _ := test.NewNullLogger()
	noPlan := NewService(m.db, "Enterprise", testWebhookSecret, nil, nil, log)
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		return noPlan.StartInitialSubscription(ctx, tx, orgID, 0)
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	sqlitetest.InsertPlan(t, m.db, "Orphan", 100)
	noRole := NewService(m.db, "Orphan", testWebhookSecret, nil, nil, log)
	err = database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		return noRole.StartInitialSubscription(ctx, tx, orgID, 0)
	})
	assert.ErrorIs(t, err, rbac.ErrSystemRoleNotFound)
	assert.Equal(t, 0, sqlitetest.Count(t, m.db, "SELECT COUNT(*) FROM subscriptions WHERE organization_id = $1", orgID))
}

func TestChangePlan(t *testing.T) {
	m := setupMarket(t)
	svc, metrics, _ := newTestService(t, m.db)
	ctx := context.Background()

	change, err := svc.ChangePlan(ctx, m.acme, m.proPlan)
	require.NoError(t, err)
	assert.Equal(t, "Pro", change.Subscription.PlanName)
	assert.Equal(t, SubscriptionStatusActive, change.Subscription.Status)
	require.NotNil(t, change.PreviousPlanID)
	assert.Equal(t, m.basicPlan, *change.PreviousPlanID)
	assert.Equal(t, int64(2), change.InvalidatedUsers)

	assert.Equal(t, "canceled", subscriptionStatus(t, m.db, m.acmeSubscription))
	sub, err := svc.GetSubscription(ctx, m.acme)
	require.NoError(t, err)
	assert.Equal(t, change.Subscription.ID, sub.ID)

	assert.Equal(t, "Pro", systemRole(t, m.db, m.owner))
	assert.Equal(t, "Pro", systemRole(t, m.db, m.member))
	assert.Equal(t, 1, sqlitetest.Count(t, m.db,
		"SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role_id = $2", m.member, m.reviewerRole))

	assert.Equal(t, 3, sqlitetest.TokenVersion(t, m.db, m.owner))
	assert.Equal(t, 1, sqlitetest.TokenVersion(t, m.db, m.member))

	// other tenants are untouched
	assert.Equal(t, "Basic", systemRole(t, m.db, m.outsider))
	assert.Equal(t, 4, sqlitetest.TokenVersion(t, m.db, m.outsider))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PlanChangesTotal.WithLabelValues("Pro")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.TokenInvalidationsTotal))
}

func TestChangePlan_Rejections(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)
	ctx := context.Background()

	_, err := svc.ChangePlan(ctx, m.acme, m.basicPlan)
	assert.ErrorIs(t, err, ErrAlreadyOnPlan)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = svc.ChangePlan(ctx, m.acme, 999)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	orphan := sqlitetest.InsertPlan(t, m.db, "Orphan", 100)
	_, err = svc.ChangePlan(ctx, m.acme, orphan)
	assert.ErrorIs(t, err, rbac.ErrSystemRoleNotFound)

	assert.Equal(t, "active", subscriptionStatus(t, m.db, m.acmeSubscription))
	assert.Equal(t, "Basic", systemRole(t, m.db, m.owner))
	assert.Equal(t, 2, sqlitetest.TokenVersion(t, m.db, m.owner))
}

func TestChangePlan_WithoutActiveSubscription(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)
	ctx := context.Background()

	orgID := sqlitetest.InsertOrg(t, m.db, "Lapsed")
	userID := sqlitetest.InsertUser(t, m.db, orgID, "lapsed@example.test", sqlitetest.UserOpts{IsOwner: true})
	old := sqlitetest.InsertSubscription(t, m.db, orgID, m.basicPlan, "expired")

	change, err := svc.ChangePlan(ctx, orgID, m.proPlan)
	require.NoError(t, err)
	assert.Nil(t, change.PreviousPlanID)
	assert.Equal(t, "expired", subscriptionStatus(t, m.db, old))
	assert.Equal(t, "Pro", systemRole(t, m.db, userID))
	assert.Equal(t, 1, sqlitetest.TokenVersion(t, m.db, userID))
}

func TestChangePlan_CancelsPastDueSubscription(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)
	ctx := context.Background()

	_, err := m.db.Exec("UPDATE subscriptions SET status = 'past_due' WHERE id = $1", m.acmeSubscription)
	require.NoError(t, err)

	change, err := svc.ChangePlan(ctx, m.acme, m.proPlan)
	require.NoError(t, err)
	require.NotNil(t, change.PreviousPlanID)
	assert.Equal(t, m.basicPlan, *change.PreviousPlanID)

	assert.Equal(t, "canceled", subscriptionStatus(t, m.db, m.acmeSubscription))
	assert.Equal(t, 1, sqlitetest.Count(t, m.db,
		"SELECT COUNT(*) FROM subscriptions WHERE organization_id = $1 AND status IN ('active', 'past_due')", m.acme))
	assert.Equal(t, "active", subscriptionStatus(t, m.db, change.Subscription.ID))
}

func TestChangePlan_CancelsEveryOpenSubscription(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)
	ctx := context.Background()

	stale := sqlitetest.InsertSubscription(t, m.db, m.acme, m.proPlan, "past_due")

	change, err := svc.ChangePlan(ctx, m.acme, m.proPlan)
	require.NoError(t, err, "a past_due row on the target plan does not count as already subscribed")
	require.NotNil(t, change.PreviousPlanID)
	assert.Equal(t, m.basicPlan, *change.PreviousPlanID, "the active subscription is preferred")

	assert.Equal(t, "canceled", subscriptionStatus(t, m.db, m.acmeSubscription))
	assert.Equal(t, "canceled", subscriptionStatus(t, m.db, stale))
	assert.Equal(t, 1, sqlitetest.Count(t, m.db,
		"SELECT COUNT(*) FROM subscriptions WHERE organization_id = $1 AND status IN ('active', 'past_due')", m.acme))

	// other tenants keep their subscription
	assert.Equal(t, 1, sqlitetest.Count(t, m.db,
		"SELECT COUNT(*) FROM subscriptions WHERE organization_id = $1 AND status = 'active'", m.globex))
}

func TestGetSubscription_NotFound(t *testing.T) {
	m := setupMarket(t)
	svc, _, _ := newTestService(t, m.db)

	orgID := sqlitetest.InsertOrg(t, m.db, "Fresh")
	_, err := svc.GetSubscription(context.Background(), orgID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestExpireSubscriptions(t *testing.T) {
	m := setupMarket(t)
	svc, metrics, _ := newTestService(t, m.db)
	ctx := context.Background()

	n, err := svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = fixedClock(time.Now().UTC().AddDate(0, 2, 0))
	n, err = svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "expired", subscriptionStatus(t, m.db, m.acmeSubscription))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SubscriptionsExpired))

	n, err = svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
