//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/contractguard/contractguard/pkg/database"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("contractguard_test"),
		postgres.WithUsername("contractguard"),
		postgres.WithPassword("contractguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	log, _ := test.NewNullLogger()
	require.NoError(t, database.RunMigrations(ctx, db, log))
	return db
}

func pgInsert(t *testing.T, db *sql.DB, query string, args ...interface{}) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(query, args...).Scan(&id))
	return id
}

func TestPostgres_SystemRoleSync(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	permA := pgInsert(t, db, `INSERT INTO permissions (action_name, description) VALUES ('a', '') RETURNING id`)
	permB := pgInsert(t, db, `INSERT INTO permissions (action_name, description) VALUES ('b', '') RETURNING id`)
	permC := pgInsert(t, db, `INSERT INTO permissions (action_name, description) VALUES ('c', '') RETURNING id`)

	pro := pgInsert(t, db, `INSERT INTO subscription_plans (name, price_cents, currency, billing_interval) VALUES ('Pro', 4900, 'usd', 'month') RETURNING id`)
	basic := pgInsert(t, db, `INSERT INTO subscription_plans (name, price_cents, currency, billing_interval) VALUES ('Basic', 0, 'usd', 'month') RETURNING id`)
	proRole := pgInsert(t, db, `INSERT INTO roles (name, is_system_role, created_at, updated_at) VALUES ('Pro', TRUE, $1, $1) RETURNING id`, now)
	_, err := db.Exec(`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2), ($1, $3)`, proRole, permA, permB)
	require.NoError(t, err)

	var orgs []int64
	var users []int64
	for i, plan := range []int64{pro, pro, basic} {
		org := pgInsert(t, db, `INSERT INTO organizations (name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`,
			[]string{"org1", "org2", "org3"}[i], now)
		orgs = append(orgs, org)
		_, err := db.Exec(`INSERT INTO subscriptions (organization_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at)
			VALUES ($1, $2, 'active', $3, $4, $3, $3)`, org, plan, now, now.AddDate(0, 1, 0))
		require.NoError(t, err)
		users = append(users, pgInsert(t, db, `
			INSERT INTO users (organization_id, email, name, password_hash, is_owner, is_super_admin, token_version, created_at, updated_at)
			VALUES ($1, $2, 'member', '', FALSE, FALSE, 0, $3, $3) RETURNING id`,
			org, []string{"a@org1.test", "b@org2.test", "c@org3.test"}[i], now))
	}

	_, err = db.Exec(`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, users[0], proRole)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	svc := NewService(db, nil, nil, log)

	result, err := svc.UpdatePermissionsForRole(ctx, proRole, []int64{permC})
	require.NoError(t, err)
	require.True(t, result.Invalidated())
	assert.ElementsMatch(t, []int64{orgs[0], orgs[1]}, result.AffectedOrganizations)

	role, err := svc.GetSystemRole(ctx, proRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, permissionNames(role))

	for i, want := range []int{1, 1, 0} {
		var v int
		require.NoError(t, db.QueryRow(`SELECT token_version FROM users WHERE id = $1`, users[i]).Scan(&v))
		assert.Equal(t, want, v, "user %d", i)
	}

	custom, err := svc.CreateRole(ctx, orgs[0], "Reviewer", []int64{permA, permB})
	require.NoError(t, err)
	_, err = svc.GetRole(ctx, custom.ID, orgs[1])
	assert.ErrorIs(t, err, ErrRoleNotFound)

	ac, err := NewResolver(db).Resolve(ctx, users[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ac.Permissions.Names())
}
