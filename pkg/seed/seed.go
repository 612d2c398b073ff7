// Package seed loads the permission catalog, subscription plans and their
// system roles into a fresh or existing database.
package seed

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/rbac"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Document is the seed file format
type Document struct {
	PlatformOrganization string       `yaml:"platformOrganization"`
	Permissions          []Permission `yaml:"permissions"`
	Plans                []Plan       `yaml:"plans"`
}

// Permission is a catalog entry
type Permission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Plan is a subscription plan and its system role's initial permissions
type Plan struct {
	Name        string   `yaml:"name"`
	PriceCents  int64    `yaml:"priceCents"`
	Currency    string   `yaml:"currency"`
	Interval    string   `yaml:"interval"`
	Permissions []string `yaml:"permissions"`
}

// Options controls Apply
type Options struct {
	// SuperAdminEmail, when set, creates or promotes a platform super-admin
	SuperAdminEmail    string
	SuperAdminPassword string
	Hasher             *auth.PasswordHasher
}

// Result counts what Apply created
type Result struct {
	PermissionsCreated int
	PlansCreated       int
	SystemRolesCreated int
	SuperAdminID       int64
}

// Default returns the embedded seed document
func Default() (*Document, error) {
	return Parse(defaultCatalog)
}

// Load reads a seed document from path, or the embedded default when path
// is empty
func Load(path string) (*Document, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that the permissions are exactly the application's
// catalog, names are unique and plans only reference listed permissions
func (d *Document) Validate() error {
	known := make(map[string]bool, len(d.Permissions))
	for _, p := range d.Permissions {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("seed: permission name is required")
		}
		if known[p.Name] {
			return fmt.Errorf("seed: duplicate permission %q", p.Name)
		}
		if !rbac.IsCatalogPermission(p.Name) {
			return fmt.Errorf("seed: permission %q is not checked by the application", p.Name)
		}
		known[p.Name] = true
	}
	for _, entry := range rbac.Catalog {
		if !known[entry.ActionName] {
			return fmt.Errorf("seed: missing catalog permission %q", entry.ActionName)
		}
	}

	plans := make(map[string]bool, len(d.Plans))
	for _, plan := range d.Plans {
		if strings.TrimSpace(plan.Name) == "" {
			return errors.New("seed: plan name is required")
		}
		if plans[plan.Name] {
			return fmt.Errorf("seed: duplicate plan %q", plan.Name)
		}
		plans[plan.Name] = true
		switch plan.Interval {
		case "", "month", "year":
		default:
			return fmt.Errorf("seed: plan %q has invalid interval %q", plan.Name, plan.Interval)
		}
		for _, name := range plan.Permissions {
			if !known[name] {
				return fmt.Errorf("seed: plan %q references unknown permission %q", plan.Name, name)
			}
		}
	}
	return nil
}

// Apply inserts whatever part of doc is missing from the database. Existing
// permissions and plans are left as they are, and a system role's
// permissions are only written when the role is created, so edits made
// through the admin API survive reseeding.
func Apply(ctx context.Context, db *sql.DB, doc *Document, opts Options, log logrus.FieldLogger) (*Result, error) {
	res := &Result{}
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		permIDs := make(map[string]int64, len(doc.Permissions))
		for _, p := range doc.Permissions {
			id, created, err := ensurePermission(ctx, tx, p)
			if err != nil {
				return err
			}
			permIDs[p.Name] = id
			if created {
				res.PermissionsCreated++
			}
		}

		for _, plan := range doc.Plans {
			created, err := ensurePlan(ctx, tx, plan)
			if err != nil {
				return err
			}
			if created {
				res.PlansCreated++
			}

			created, err = ensureSystemRole(ctx, tx, plan, permIDs)
			if err != nil {
				return err
			}
			if created {
				res.SystemRolesCreated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.SuperAdminEmail != "" {
		id, err := ensureSuperAdmin(ctx, db, doc, opts)
		if err != nil {
			return nil, err
		}
		res.SuperAdminID = id
	}

	log.WithFields(logrus.Fields{
		"permissions_created":  res.PermissionsCreated,
		"plans_created":        res.PlansCreated,
		"system_roles_created": res.SystemRolesCreated,
	}).Info("seed applied")
	return res, nil
}

func ensurePermission(ctx context.Context, tx *sql.Tx, p Permission) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM permissions WHERE action_name = $1", p.Name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to look up permission %q: %w", p.Name, err)
	}
	if err := tx.QueryRowContext(ctx,
		"INSERT INTO permissions (action_name, description) VALUES ($1, $2) RETURNING id",
		p.Name, p.Description,
	).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to create permission %q: %w", p.Name, err)
	}
	return id, true, nil
}

func ensurePlan(ctx context.Context, tx *sql.Tx, plan Plan) (bool, error) {
	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscription_plans WHERE name = $1", plan.Name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up plan %q: %w", plan.Name, err)
	}
	if exists > 0 {
		return false, nil
	}

	currency, interval := plan.Currency, plan.Interval
	if currency == "" {
		currency = "usd"
	}
	if interval == "" {
		interval = "month"
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO subscription_plans (name, price_cents, currency, billing_interval) VALUES ($1, $2, $3, $4)",
		plan.Name, plan.PriceCents, currency, interval,
	); err != nil {
		return false, fmt.Errorf("failed to create plan %q: %w", plan.Name, err)
	}
	return true, nil
}

func ensureSystemRole(ctx context.Context, tx *sql.Tx, plan Plan, permIDs map[string]int64) (bool, error) {
	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM roles WHERE name = $1 AND is_system_role = TRUE", plan.Name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up system role %q: %w", plan.Name, err)
	}
	if exists > 0 {
		return false, nil
	}

	var roleID int64
	if err := tx.QueryRowContext(ctx,
		"INSERT INTO roles (name, organization_id, is_system_role) VALUES ($1, NULL, TRUE) RETURNING id",
		plan.Name,
	).Scan(&roleID); err != nil {
		return false, fmt.Errorf("failed to create system role %q: %w", plan.Name, err)
	}
	for _, name := range plan.Permissions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)",
			roleID, permIDs[name],
		); err != nil {
			return false, fmt.Errorf("failed to grant %q to system role %q: %w", name, plan.Name, err)
		}
	}
	return true, nil
}

func ensureSuperAdmin(ctx context.Context, db *sql.DB, doc *Document, opts Options) (int64, error) {
	if opts.SuperAdminPassword == "" {
		return 0, errors.New("seed: super admin password is required")
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}

	orgName := doc.PlatformOrganization
	if orgName == "" {
		orgName = "ContractGuard Platform"
	}
	var orgID int64
	err := db.QueryRowContext(ctx, "SELECT id FROM organizations WHERE name = $1 ORDER BY id LIMIT 1", orgName).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		err = db.QueryRowContext(ctx, "INSERT INTO organizations (name) VALUES ($1) RETURNING id", orgName).Scan(&orgID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to prepare platform organization: %w", err)
	}

	hash, err := hasher.Hash(opts.SuperAdminPassword)
	if err != nil {
		return 0, err
	}
	user, err := auth.NewStore(db).CreateSuperAdmin(ctx, orgID, opts.SuperAdminEmail, "Platform Admin", hash)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
