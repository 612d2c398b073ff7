package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
)

// AuditReader lists an organization's recorded audit events
type AuditReader interface {
	ListForOrganization(ctx context.Context, orgID int64, limit int) ([]*audit.Event, error)
}

// Service reads and renames organizations
type Service struct {
	db     *sql.DB
	audit  audit.Logger
	events AuditReader
	log    logrus.FieldLogger
}

// NewService creates a new organization service. events may be nil, in which
// case the audit trail is reported empty.
func NewService(db *sql.DB, auditLogger audit.Logger, events AuditReader, log logrus.FieldLogger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Service{
		db:     db,
		audit:  auditLogger,
		events: events,
		log:    log.WithField("component", "orgs"),
	}
}

// GetOrganization returns orgID with its member count and current plan.
// The plan is taken from the active subscription when there is one,
// otherwise from the most recent subscription.
func (s *Service) GetOrganization(ctx context.Context, orgID int64) (*Organization, error) {
	var (
		org     Organization
		ownerID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.name, o.owner_id, o.created_at, o.updated_at,
		       (SELECT COUNT(*) FROM users u WHERE u.organization_id = o.id)
		FROM organizations o
		WHERE o.id = $1`, orgID,
	).Scan(&org.ID, &org.Name, &ownerID, &org.CreatedAt, &org.UpdatedAt, &org.MemberCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if ownerID.Valid {
		org.OwnerID = &ownerID.Int64
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT p.name, s.status
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.organization_id = $1
		ORDER BY CASE WHEN s.status = 'active' THEN 0 ELSE 1 END, s.id DESC
		LIMIT 1`, orgID,
	).Scan(&org.PlanName, &org.SubscriptionStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get organization plan: %w", err)
	}

	return &org, nil
}

// Rename changes the name of the caller's organization. Only the user
// recorded as the organization's owner, or a super-admin, may rename it.
func (s *Service) Rename(ctx context.Context, ac *auth.AuthContext, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	if ac == nil {
		return nil, ErrNotOwner
	}

	var (
		oldName string
		ownerID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT name, owner_id FROM organizations WHERE id = $1", ac.OrganizationID,
	).Scan(&oldName, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if !ac.IsSuperAdmin && (!ownerID.Valid || ownerID.Int64 != ac.UserID) {
		return nil, ErrNotOwner
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE organizations SET name = $1, updated_at = $2 WHERE id = $3",
		name, time.Now().UTC(), ac.OrganizationID,
	); err != nil {
		return nil, fmt.Errorf("failed to rename organization: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": ac.OrganizationID,
		"user_id":         ac.UserID,
	}).Info("organization renamed")
	audit.Record(ctx, s.audit, audit.NewEvent(audit.EventTypeOrgRename, audit.ResourceOrganization, ac.OrganizationID).
		ByUser(ac.UserID, ac.OrganizationID).
		With("old_name", oldName).
		With("new_name", name))

	return s.GetOrganization(ctx, ac.OrganizationID)
}

// ListAuditEvents returns the newest audit events of orgID
func (s *Service) ListAuditEvents(ctx context.Context, orgID int64, limit int) ([]*audit.Event, error) {
	if s.events == nil {
		return []*audit.Event{}, nil
	}
	events, err := s.events.ListForOrganization(ctx, orgID, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*audit.Event{}
	}
	return events, nil
}
