package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/observability"
	"github.com/contractguard/contractguard/pkg/rbac"
)

// Service manages plans and subscriptions. Every plan change swaps the
// organization's system role and invalidates its members' sessions.
type Service struct {
	db            *sql.DB
	defaultPlan   string
	webhookSecret string
	audit         audit.Logger
	metrics       *observability.Metrics
	log           logrus.FieldLogger
	now           func() time.Time
}

// NewService creates a new billing service. defaultPlan names the plan new
// organizations start on.
func NewService(db *sql.DB, defaultPlan, webhookSecret string, auditLogger audit.Logger, metrics *observability.Metrics, log logrus.FieldLogger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Service{
		db:            db,
		defaultPlan:   defaultPlan,
		webhookSecret: webhookSecret,
		audit:         auditLogger,
		metrics:       metrics,
		log:           log.WithField("component", "billing"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ListPlans returns every plan, cheapest first
func (s *Service) ListPlans(ctx context.Context) ([]Plan, error) {
	return listPlans(ctx, s.db)
}

// GetSubscription returns the organization's active subscription, or its
// most recent one when none is active.
func (s *Service) GetSubscription(ctx context.Context, orgID int64) (*Subscription, error) {
	return latestSubscription(ctx, s.db, orgID)
}

// StartInitialSubscription subscribes a new organization to the default plan
// and gives its members the plan's system role. It runs inside the
// registration transaction.
func (s *Service) StartInitialSubscription(ctx context.Context, tx *sql.Tx, orgID, ownerID int64) error {
	plan, err := planByName(ctx, tx, s.defaultPlan)
	if err != nil {
		return fmt.Errorf("default plan %q: %w", s.defaultPlan, err)
	}
	roleID, err := rbac.SystemRoleIDByName(ctx, tx, plan.Name)
	if err != nil {
		return fmt.Errorf("default plan %q: %w", s.defaultPlan, err)
	}
	if _, err := insertSubscription(ctx, tx, orgID, plan, s.now()); err != nil {
		return err
	}
	if err := rbac.AssignSystemRole(ctx, tx, orgID, roleID); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"owner_id":        ownerID,
		"plan":            plan.Name,
	}).Info("organization subscribed to default plan")
	return nil
}

// ChangePlan moves orgID to planID in one transaction: every active or
// past_due subscription is canceled, a new active one is created, every member's
// system role is swapped for the new plan's, and every member's token
// version is incremented.
func (s *Service) ChangePlan(ctx context.Context, orgID, planID int64) (*PlanChange, error) {
	var change *PlanChange
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		change, err = s.changePlan(ctx, tx, orgID, planID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.planChanged(ctx, change)
	return change, nil
}

func (s *Service) changePlan(ctx context.Context, tx *sql.Tx, orgID, planID int64) (*PlanChange, error) {
	plan, err := getPlan(ctx, tx, planID)
	if err != nil {
		return nil, err
	}

	current, err := latestSubscription(ctx, tx, orgID, SubscriptionStatusActive, SubscriptionStatusPastDue)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	if current != nil && current.Status == SubscriptionStatusActive && current.PlanID == planID {
		return nil, ErrAlreadyOnPlan
	}

	roleID, err := rbac.SystemRoleIDByName(ctx, tx, plan.Name)
	if err != nil {
		return nil, fmt.Errorf("plan %q: %w", plan.Name, err)
	}

	now := s.now()
	change := &PlanChange{}
	if current != nil {
		change.PreviousPlanID = &current.PlanID
	}
	if err := cancelOpenSubscriptions(ctx, tx, orgID, now); err != nil {
		return nil, err
	}
	if change.Subscription, err = insertSubscription(ctx, tx, orgID, plan, now); err != nil {
		return nil, err
	}
	if err := rbac.AssignSystemRole(ctx, tx, orgID, roleID); err != nil {
		return nil, err
	}
	if change.InvalidatedUsers, err = rbac.BumpTokenVersions(ctx, tx, []int64{orgID}); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Service) planChanged(ctx context.Context, change *PlanChange) {
	sub := change.Subscription
	s.metrics.PlanChangesTotal.WithLabelValues(sub.PlanName).Inc()
	s.metrics.TokenInvalidationsTotal.Add(float64(change.InvalidatedUsers))

	s.log.WithFields(logrus.Fields{
		"organization_id":   sub.OrganizationID,
		"plan":              sub.PlanName,
		"invalidated_users": change.InvalidatedUsers,
	}).Info("subscription plan changed")

	event := audit.NewEvent(audit.EventTypePlanChange, audit.ResourceSubscription, sub.ID).
		With("plan_id", sub.PlanID).
		With("plan", sub.PlanName).
		With("invalidated_users", change.InvalidatedUsers)
	if change.PreviousPlanID != nil {
		event.With("previous_plan_id", *change.PreviousPlanID)
	}
	if ac := auth.FromContext(ctx); ac != nil {
		event.ByUser(ac.UserID, ac.OrganizationID)
	} else {
		orgID := sub.OrganizationID
		event.OrganizationID = &orgID
	}
	audit.Record(ctx, s.audit, event)
}

// ExpireSubscriptions marks active subscriptions whose period has ended as
// expired and returns how many changed.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int64, error) {
	n, err := expireLapsed(ctx, s.db, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.SubscriptionsExpired.Add(float64(n))
		s.log.WithField("count", n).Info("expired lapsed subscriptions")
	}
	return n, nil
}
