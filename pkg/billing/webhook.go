package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/database"
)

// Webhook outcomes reported on contractguard_billing_webhook_events_total
const (
	webhookProcessed = "processed"
	webhookDuplicate = "duplicate"
	webhookIgnored   = "ignored"
	webhookRejected  = "rejected"
	webhookFailed    = "failed"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Signature"

// VerifySignature reports whether signature is the hex HMAC-SHA256 of
// payload under secret. An empty secret verifies nothing.
func VerifySignature(payload []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleWebhook verifies and applies a billing provider event. Events are
// applied at most once, keyed by their id; replays succeed without effect.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !VerifySignature(payload, signature, s.webhookSecret) {
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", webhookRejected).Inc()
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" || event.Type == "" {
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", webhookRejected).Inc()
		return ErrInvalidPayload
	}

	log := s.log.WithFields(logrus.Fields{
		"event_id":        event.ID,
		"event_type":      event.Type,
		"organization_id": event.Data.OrganizationID,
	})

	var (
		status = webhookProcessed
		change *PlanChange
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		fresh, err := claimWebhookEvent(ctx, tx, event.ID, event.Type, s.now())
		if err != nil {
			return err
		}
		if !fresh {
			status = webhookDuplicate
			return nil
		}
		change, status, err = s.applyEvent(ctx, tx, &event)
		return err
	})
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, webhookFailed).Inc()
		log.WithError(err).Warn("billing webhook failed")
		return err
	}

	s.metrics.WebhookEventsTotal.WithLabelValues(event.Type, status).Inc()
	log.WithField("status", status).Info("billing webhook handled")

	if change != nil {
		s.planChanged(ctx, change)
	} else if status == webhookProcessed {
		orgID := event.Data.OrganizationID
		e := audit.NewEvent(audit.EventTypeSubscriptionSync, audit.ResourceOrganization, orgID).
			With("event_id", event.ID).
			With("event_type", event.Type)
		e.OrganizationID = &orgID
		audit.Record(ctx, s.audit, e)
	}
	return nil
}

func knownEvent(eventType string) bool {
	switch eventType {
	case EventSubscriptionRenewed, EventSubscriptionPastDue, EventSubscriptionCanceled, EventSubscriptionPlanChanged:
		return true
	}
	return false
}

func (s *Service) applyEvent(ctx context.Context, tx *sql.Tx, event *WebhookEvent) (*PlanChange, string, error) {
	if !knownEvent(event.Type) {
		return nil, webhookIgnored, nil
	}
	orgID := event.Data.OrganizationID
	if orgID <= 0 {
		return nil, "", ErrInvalidPayload
	}
	now := s.now()

	switch event.Type {
	case EventSubscriptionRenewed:
		sub, err := latestSubscription(ctx, tx, orgID, SubscriptionStatusActive, SubscriptionStatusPastDue)
		if err != nil {
			return nil, "", err
		}
		plan, err := getPlan(ctx, tx, sub.PlanID)
		if err != nil {
			return nil, "", err
		}
		start := sub.CurrentPeriodEnd
		end := plan.BillingInterval.next(start)
		if event.Data.CurrentPeriodEnd != nil {
			end = event.Data.CurrentPeriodEnd.UTC()
		}
		return nil, webhookProcessed, renewSubscription(ctx, tx, sub.ID, start, end, now)

	case EventSubscriptionPastDue:
		sub, err := latestSubscription(ctx, tx, orgID, SubscriptionStatusActive)
		if err != nil {
			return nil, "", err
		}
		return nil, webhookProcessed, setSubscriptionStatus(ctx, tx, sub.ID, SubscriptionStatusPastDue, now)

	case EventSubscriptionCanceled:
		sub, err := latestSubscription(ctx, tx, orgID, SubscriptionStatusActive, SubscriptionStatusPastDue)
		if err != nil {
			return nil, "", err
		}
		return nil, webhookProcessed, setSubscriptionStatus(ctx, tx, sub.ID, SubscriptionStatusCanceled, now)

	default: // EventSubscriptionPlanChanged
		if event.Data.PlanID <= 0 {
			return nil, "", ErrInvalidPayload
		}
		change, err := s.changePlan(ctx, tx, orgID, event.Data.PlanID)
		if errors.Is(err, ErrAlreadyOnPlan) {
			return nil, webhookProcessed, nil
		}
		if err != nil {
			return nil, "", err
		}
		return change, webhookProcessed, nil
	}
}
