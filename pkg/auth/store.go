package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store provides database operations for users
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, organization_id, email, name, password_hash, is_owner, is_super_admin, token_version, created_at, updated_at`

func scanUser(scanner interface{ Scan(dest ...interface{}) error }) (*User, error) {
	u := &User{}
	err := scanner.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.PasswordHash,
		&u.IsOwner, &u.IsSuperAdmin, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// TokenVersion returns the stored token version of a user
func (s *Store) TokenVersion(ctx context.Context, userID int64) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT token_version FROM users WHERE id = $1`, userID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get token version: %w", err)
	}
	return version, nil
}

// emailExists checks for an existing account inside tx
func emailExists(ctx context.Context, tx *sql.Tx, email string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

// createOrganizationWithOwner inserts an organization and its owner, then
// points the organization at the owner.
func createOrganizationWithOwner(ctx context.Context, tx *sql.Tx, orgName string, owner *User) error {
	now := time.Now().UTC()

	var orgID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO organizations (name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`,
		orgName, now,
	).Scan(&orgID); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	owner.OrganizationID = orgID
	owner.IsOwner = true
	owner.CreatedAt = now
	owner.UpdatedAt = now
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO users (organization_id, email, name, password_hash, is_owner, is_super_admin, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		RETURNING id`,
		orgID, owner.Email, owner.Name, owner.PasswordHash, true, false, now,
	).Scan(&owner.ID); err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE organizations SET owner_id = $1 WHERE id = $2`, owner.ID, orgID,
	); err != nil {
		return fmt.Errorf("failed to set organization owner: %w", err)
	}
	return nil
}

// CreateSuperAdmin inserts a platform operator into orgID, or promotes the
// existing account with that email. Used by seeding.
func (s *Store) CreateSuperAdmin(ctx context.Context, orgID int64, email, name, passwordHash string) (*User, error) {
	email = normalizeEmail(email)
	now := time.Now().UTC()

	existing, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE users SET is_super_admin = $1, updated_at = $2 WHERE id = $3`,
			true, now, existing.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to promote super admin: %w", err)
		}
		existing.IsSuperAdmin = true
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	u := &User{
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		PasswordHash:   passwordHash,
		IsSuperAdmin:   true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (organization_id, email, name, password_hash, is_owner, is_super_admin, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		RETURNING id`,
		orgID, u.Email, u.Name, u.PasswordHash, false, true, now,
	).Scan(&u.ID); err != nil {
		return nil, fmt.Errorf("failed to create super admin: %w", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
