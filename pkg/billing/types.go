package billing

import (
	"time"

	"github.com/contractguard/contractguard/pkg/apperrors"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// BillingInterval is the renewal period of a plan
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// next returns the end of a period starting at start
func (i BillingInterval) next(start time.Time) time.Time {
	if i == IntervalYear {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// Plan is a subscription plan. Each plan has a system role of the same name
// carrying the permissions the plan grants.
type Plan struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	PriceCents      int64           `json:"priceCents"`
	Currency        string          `json:"currency"`
	BillingInterval BillingInterval `json:"billingInterval"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Subscription binds an organization to a plan
type Subscription struct {
	ID                 int64              `json:"id"`
	OrganizationID     int64              `json:"organizationId"`
	PlanID             int64              `json:"planId"`
	PlanName           string             `json:"planName"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// ChangePlanRequest is the body of POST /subscription
type ChangePlanRequest struct {
	PlanID int64 `json:"planId" validate:"required,gt=0"`
}

// PlanChange is the outcome of moving an organization to another plan
type PlanChange struct {
	Subscription     *Subscription `json:"subscription"`
	PreviousPlanID   *int64        `json:"previousPlanId,omitempty"`
	InvalidatedUsers int64         `json:"invalidatedUsers"`
}

// Webhook event types accepted on POST /webhooks/billing
const (
	EventSubscriptionRenewed     = "subscription.renewed"
	EventSubscriptionPastDue     = "subscription.past_due"
	EventSubscriptionCanceled    = "subscription.canceled"
	EventSubscriptionPlanChanged = "subscription.plan_changed"
)

// WebhookEvent is a payment provider notification
type WebhookEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

// WebhookData carries the event's subject
type WebhookData struct {
	OrganizationID   int64      `json:"organizationId"`
	PlanID           int64      `json:"planId,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

var (
	// ErrPlanNotFound is returned for an unknown plan id or name
	ErrPlanNotFound = apperrors.NotFound("plan not found")
	// ErrSubscriptionNotFound is returned when an organization has no matching subscription
	ErrSubscriptionNotFound = apperrors.NotFound("subscription not found")
	// ErrAlreadyOnPlan is returned when changing to the plan already active
	ErrAlreadyOnPlan = apperrors.Conflict("organization is already on this plan")
	// ErrInvalidSignature is returned for webhooks failing HMAC verification
	ErrInvalidSignature = apperrors.Unauthorized("invalid signature")
	// ErrInvalidPayload is returned for malformed webhook bodies
	ErrInvalidPayload = apperrors.Invalid("invalid webhook payload")
)
