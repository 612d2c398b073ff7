package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/contractguard/contractguard/pkg/database"
)

const planColumns = "id, name, price_cents, currency, billing_interval, created_at"

const subscriptionColumns = `s.id, s.organization_id, s.plan_id, p.name, s.status,
	s.current_period_start, s.current_period_end, s.created_at, s.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var (
		p        Plan
		interval string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Currency, &interval, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.BillingInterval = BillingInterval(interval)
	return &p, nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub    Subscription
		status string
	)
	if err := row.Scan(&sub.ID, &sub.OrganizationID, &sub.PlanID, &sub.PlanName, &status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Status = SubscriptionStatus(status)
	return &sub, nil
}

func listPlans(ctx context.Context, q database.Querier) ([]Plan, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+planColumns+" FROM subscription_plans ORDER BY price_cents, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func getPlan(ctx context.Context, q database.Querier, id int64) (*Plan, error) {
	p, err := scanPlan(q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM subscription_plans WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

func planByName(ctx context.Context, q database.Querier, name string) (*Plan, error) {
	p, err := scanPlan(q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM subscription_plans WHERE name = $1", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// latestSubscription returns the newest subscription of orgID whose status
// is one of statuses, preferring an active one.
func latestSubscription(ctx context.Context, q database.Querier, orgID int64, statuses ...SubscriptionStatus) (*Subscription, error) {
	args := []interface{}{orgID}
	filter := ""
	if len(statuses) > 0 {
		filter = " AND s.status IN (" + database.Placeholders(2, len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}

	sub, err := scanSubscription(q.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.organization_id = $1`+filter+`
		ORDER BY CASE WHEN s.status = 'active' THEN 0 ELSE 1 END, s.id DESC
		LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func insertSubscription(ctx context.Context, tx *sql.Tx, orgID int64, plan *Plan, now time.Time) (*Subscription, error) {
	sub := &Subscription{
		OrganizationID:     orgID,
		PlanID:             plan.ID,
		PlanName:           plan.Name,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.BillingInterval.next(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (organization_id, plan_id, status, current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sub.OrganizationID, sub.PlanID, string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now, now,
	).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

func setSubscriptionStatus(ctx context.Context, q database.Querier, id int64, status SubscriptionStatus, now time.Time) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE subscriptions SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), now, id,
	); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// cancelOpenSubscriptions cancels every active or past_due subscription of
// orgID so at most one open subscription exists after a plan change
func cancelOpenSubscriptions(ctx context.Context, q database.Querier, orgID int64, now time.Time) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE organization_id = $3 AND status IN ($4, $5)`,
		string(SubscriptionStatusCanceled), now, orgID,
		string(SubscriptionStatusActive), string(SubscriptionStatusPastDue),
	); err != nil {
		return fmt.Errorf("failed to cancel subscriptions: %w", err)
	}
	return nil
}

func renewSubscription(ctx context.Context, q database.Querier, id int64, start, end, now time.Time) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3, updated_at = $4
		WHERE id = $5`,
		string(SubscriptionStatusActive), start, end, now, id,
	); err != nil {
		return fmt.Errorf("failed to renew subscription: %w", err)
	}
	return nil
}

// expireLapsed marks active subscriptions whose period ended before now
func expireLapsed(ctx context.Context, q database.Querier, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, updated_at = $2
		WHERE status = $3 AND current_period_end < $2`,
		string(SubscriptionStatusExpired), now, string(SubscriptionStatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// claimWebhookEvent records eventID, reporting false when it was seen before
func claimWebhookEvent(ctx context.Context, tx *sql.Tx, eventID, eventType string, now time.Time) (bool, error) {
	var seen int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM billing_webhook_events WHERE event_id = $1", eventID,
	).Scan(&seen); err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	if seen > 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO billing_webhook_events (event_id, event_type, received_at) VALUES ($1, $2, $3)",
		eventID, eventType, now,
	); err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return true, nil
}
