// Package sqlitetest provides an in-memory SQLite database carrying the same
// schema as the Postgres migrations, plus fixture helpers for tests.
package sqlitetest

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const schema = `
CREATE TABLE organizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	owner_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	is_owner BOOLEAN NOT NULL DEFAULT 0,
	is_super_admin BOOLEAN NOT NULL DEFAULT 0,
	token_version INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	organization_id INTEGER REFERENCES organizations(id) ON DELETE CASCADE,
	is_system_role BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE role_permissions (
	role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
	PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE user_roles (
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, role_id)
);

CREATE TABLE subscription_plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	price_cents INTEGER NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'usd',
	billing_interval TEXT NOT NULL DEFAULT 'month',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	plan_id INTEGER NOT NULL REFERENCES subscription_plans(id),
	status TEXT NOT NULL,
	current_period_start TIMESTAMP NOT NULL,
	current_period_end TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX idx_subscriptions_one_active ON subscriptions(organization_id) WHERE status = 'active';

CREATE TABLE billing_webhook_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE contracts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	counterparty TEXT NOT NULL DEFAULT '',
	value_cents INTEGER NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'usd',
	status TEXT NOT NULL DEFAULT 'draft',
	risk_level TEXT NOT NULL DEFAULT 'low',
	start_date TIMESTAMP,
	end_date TIMESTAMP,
	created_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	organization_id INTEGER,
	user_id INTEGER,
	resource_type TEXT,
	resource_id TEXT,
	status TEXT NOT NULL,
	message TEXT,
	metadata TEXT,
	request_id TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens a fresh in-memory database with the full schema applied.
// The pool is pinned to a single connection so every statement sees the
// same in-memory database.
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

// InsertOrg creates an organization and returns its id
func InsertOrg(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	return insert(t, db, "INSERT INTO organizations (name) VALUES ($1) RETURNING id", name)
}

// UserOpts customizes InsertUser
type UserOpts struct {
	IsOwner      bool
	IsSuperAdmin bool
	TokenVersion int
	PasswordHash string
}

// InsertUser creates a user in orgID and returns its id
func InsertUser(t testing.TB, db *sql.DB, orgID int64, email string, opts UserOpts) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO users (organization_id, email, name, password_hash, is_owner, is_super_admin, token_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		orgID, email, email, opts.PasswordHash, opts.IsOwner, opts.IsSuperAdmin, opts.TokenVersion,
	)
}

// InsertPermission creates a catalog permission and returns its id
func InsertPermission(t testing.TB, db *sql.DB, action string) int64 {
	t.Helper()
	return insert(t, db, "INSERT INTO permissions (action_name, description) VALUES ($1, $2) RETURNING id", action, action)
}

// InsertCustomRole creates an org-scoped role and returns its id
func InsertCustomRole(t testing.TB, db *sql.DB, orgID int64, name string) int64 {
	t.Helper()
	return insert(t, db, "INSERT INTO roles (name, organization_id, is_system_role) VALUES ($1, $2, 0) RETURNING id", name, orgID)
}

// InsertSystemRole creates a platform-scoped role and returns its id
func InsertSystemRole(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	return insert(t, db, "INSERT INTO roles (name, organization_id, is_system_role) VALUES ($1, NULL, 1) RETURNING id", name)
}

// InsertPlan creates a subscription plan and returns its id
func InsertPlan(t testing.TB, db *sql.DB, name string, priceCents int64) int64 {
	t.Helper()
	return insert(t, db,
		"INSERT INTO subscription_plans (name, price_cents, currency, billing_interval) VALUES ($1, $2, 'usd', 'month') RETURNING id",
		name, priceCents,
	)
}

// InsertSubscription binds orgID to planID with the given status
func InsertSubscription(t testing.TB, db *sql.DB, orgID, planID int64, status string) int64 {
	t.Helper()
	now := time.Now().UTC()
	return insert(t, db,
		`INSERT INTO subscriptions (organization_id, plan_id, status, current_period_start, current_period_end)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		orgID, planID, status, now, now.AddDate(0, 1, 0),
	)
}

// Grant adds permissionIDs to roleID
func Grant(t testing.TB, db *sql.DB, roleID int64, permissionIDs ...int64) {
	t.Helper()
	for _, pid := range permissionIDs {
		_, err := db.Exec("INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)", roleID, pid)
		require.NoError(t, err)
	}
}

// Assign gives userID the roles
func Assign(t testing.TB, db *sql.DB, userID int64, roleIDs ...int64) {
	t.Helper()
	for _, rid := range roleIDs {
		_, err := db.Exec("INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)", userID, rid)
		require.NoError(t, err)
	}
}

// TokenVersion reads a user's stored token version
func TokenVersion(t testing.TB, db *sql.DB, userID int64) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("SELECT token_version FROM users WHERE id = $1", userID).Scan(&v))
	return v
}

// Count runs a COUNT(*) query
func Count(t testing.TB, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func insert(t testing.TB, db *sql.DB, query string, args ...interface{}) int64 {
	var id int64
	require.NoError(t, db.QueryRow(query, args...).Scan(&id))
	return id
}
