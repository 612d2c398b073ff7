package orgs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractguard/contractguard/pkg/apperrors"
	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database/sqlitetest"
)

type orgFixture struct {
	db       *sql.DB
	svc      *Service
	orgID    int64
	ownerID  int64
	memberID int64
}

func newOrgFixture(t *testing.T) *orgFixture {
	t.Helper()
	db := sqlitetest.New(t)
	orgID := sqlitetest.InsertOrg(t, db, "Acme")
	ownerID := sqlitetest.InsertUser(t, db, orgID, "owner@acme.test", sqlitetest.UserOpts{IsOwner: true})
	memberID := sqlitetest.InsertUser(t, db, orgID, "member@acme.test", sqlitetest.UserOpts{})
	_, err := db.Exec("UPDATE organizations SET owner_id = $1 WHERE id = $2", ownerID, orgID)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	events := audit.NewDBLogger(db)
	svc := NewService(db, events, events, logger)
	return &orgFixture{db: db, svc: svc, orgID: orgID, ownerID: ownerID, memberID: memberID}
}

func (f *orgFixture) owner() *auth.AuthContext {
	return &auth.AuthContext{UserID: f.ownerID, OrganizationID: f.orgID, IsOwner: true}
}

func TestGetOrganization(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	org, err := f.svc.GetOrganization(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	require.NotNil(t, org.OwnerID)
	assert.Equal(t, f.ownerID, *org.OwnerID)
	assert.Equal(t, 2, org.MemberCount)
	assert.Empty(t, org.PlanName)

	basic := sqlitetest.InsertPlan(t, f.db, "Basic", 0)
	pro := sqlitetest.InsertPlan(t, f.db, "Pro", 4900)
	sqlitetest.InsertSubscription(t, f.db, f.orgID, basic, "canceled")
	sqlitetest.InsertSubscription(t, f.db, f.orgID, pro, "active")

	org, err = f.svc.GetOrganization(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", org.PlanName)
	assert.Equal(t, "active", org.SubscriptionStatus)
}

func TestGetOrganization_FallsBackToLatestSubscription(t *testing.T) {
	f := newOrgFixture(t)
	basic := sqlitetest.InsertPlan(t, f.db, "Basic", 0)
	pro := sqlitetest.InsertPlan(t, f.db, "Pro", 4900)
	sqlitetest.InsertSubscription(t, f.db, f.orgID, basic, "canceled")
	sqlitetest.InsertSubscription(t, f.db, f.orgID, pro, "past_due")

	org, err := f.svc.GetOrganization(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", org.PlanName)
	assert.Equal(t, "past_due", org.SubscriptionStatus)
}

func TestGetOrganization_NotFound(t *testing.T) {
	f := newOrgFixture(t)

	_, err := f.svc.GetOrganization(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRename_Owner(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	org, err := f.svc.Rename(ctx, f.owner(), "  Acme Holdings ")
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", org.Name)

	events, err := f.svc.ListAuditEvents(ctx, f.orgID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeOrgRename, events[0].EventType)
	assert.Equal(t, "Acme", events[0].Metadata["old_name"])
	assert.Equal(t, "Acme Holdings", events[0].Metadata["new_name"])
}

func TestRename_NonOwnerRejected(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	member := &auth.AuthContext{
		UserID:         f.memberID,
		OrganizationID: f.orgID,
		Permissions:    auth.NewPermissionSet("organization.read", "role.update"),
	}
	_, err := f.svc.Rename(ctx, member, "Hijacked")
	assert.ErrorIs(t, err, ErrNotOwner)

	// a forged owner flag is not enough, owner_id decides
	forged := &auth.AuthContext{UserID: f.memberID, OrganizationID: f.orgID, IsOwner: true}
	_, err = f.svc.Rename(ctx, forged, "Hijacked")
	assert.ErrorIs(t, err, ErrNotOwner)

	org, err := f.svc.GetOrganization(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
}

func TestRename_SuperAdmin(t *testing.T) {
	f := newOrgFixture(t)

	admin := &auth.AuthContext{UserID: f.memberID, OrganizationID: f.orgID, IsSuperAdmin: true}
	org, err := f.svc.Rename(context.Background(), admin, "Acme Admin")
	require.NoError(t, err)
	assert.Equal(t, "Acme Admin", org.Name)
}

func TestRename_Validation(t *testing.T) {
	f := newOrgFixture(t)

	_, err := f.svc.Rename(context.Background(), f.owner(), "   ")
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))

	_, err = f.svc.Rename(context.Background(), nil, "Acme")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestListAuditEvents_WithoutReader(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := NewService(sqlitetest.New(t), nil, nil, logger)

	events, err := svc.ListAuditEvents(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
