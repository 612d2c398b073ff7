package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the ordered Postgres schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					owner_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					is_owner BOOLEAN NOT NULL DEFAULT FALSE,
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					token_version INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				ALTER TABLE organizations
					ADD CONSTRAINT fk_organizations_owner
					FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE SET NULL;

				CREATE INDEX idx_users_organization_id ON users(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create permissions, roles and join tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					action_name VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK ((is_system_role AND organization_id IS NULL) OR
					       (NOT is_system_role AND organization_id IS NOT NULL))
				);

				CREATE UNIQUE INDEX idx_roles_system_name ON roles(name) WHERE is_system_role;
				CREATE INDEX idx_roles_organization_id ON roles(organization_id);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE TABLE IF NOT EXISTS user_roles (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create subscription plans and subscriptions",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscription_plans (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					price_cents BIGINT NOT NULL DEFAULT 0,
					currency VARCHAR(3) NOT NULL DEFAULT 'usd',
					billing_interval VARCHAR(20) NOT NULL DEFAULT 'month',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					plan_id BIGINT NOT NULL REFERENCES subscription_plans(id),
					status VARCHAR(50) NOT NULL,
					current_period_start TIMESTAMP NOT NULL,
					current_period_end TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_subscriptions_one_active
					ON subscriptions(organization_id) WHERE status = 'active';
				CREATE INDEX idx_subscriptions_plan_id ON subscriptions(plan_id);

				CREATE TABLE IF NOT EXISTS billing_webhook_events (
					event_id VARCHAR(255) PRIMARY KEY,
					event_type VARCHAR(100) NOT NULL,
					received_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     4,
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					title VARCHAR(255) NOT NULL,
					counterparty VARCHAR(255) NOT NULL DEFAULT '',
					value_cents BIGINT NOT NULL DEFAULT 0,
					currency VARCHAR(3) NOT NULL DEFAULT 'usd',
					status VARCHAR(20) NOT NULL DEFAULT 'draft',
					risk_level VARCHAR(20) NOT NULL DEFAULT 'low',
					start_date TIMESTAMP,
					end_date TIMESTAMP,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_contracts_organization_id ON contracts(organization_id);
				CREATE INDEX idx_contracts_created_by ON contracts(created_by);
			`,
		},
		{
			Version:     5,
			Description: "Create audit events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					event_type VARCHAR(100) NOT NULL,
					organization_id BIGINT,
					user_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					status VARCHAR(20) NOT NULL,
					message TEXT,
					metadata JSONB,
					request_id VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_events_organization_id ON audit_events(organization_id, created_at);
			`,
		},
	}
}

// RunMigrations applies every pending migration, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		m := migration
		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				m.Version, m.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// PendingMigrations returns how many known migrations have not been applied.
// A database that was never migrated reports every migration as pending.
func PendingMigrations(ctx context.Context, db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'schema_migrations'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if tables == 0 {
		return len(GetMigrations()), nil
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, m := range GetMigrations() {
		if !applied[m.Version] {
			pending++
		}
	}
	return pending, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
