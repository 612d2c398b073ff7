package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/contextkeys"
	"github.com/contractguard/contractguard/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NoopLogger discards every event
type NoopLogger struct{}

// Log implements Logger
func (NoopLogger) Log(context.Context, *Event) error { return nil }

// Record stamps event with the time and request ID and hands it to l.
// Failures are logged and swallowed.
func Record(ctx context.Context, l Logger, event *Event) {
	if l == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}

	if err := l.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
		}).Warn("failed to record audit event")
	}
}

// LogrusLogger writes audit events to a structured logger
type LogrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger backed by log
func NewLogrusLogger(log logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{log: log}
}

// Log implements Logger
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":         true,
		"event_type":    event.EventType,
		"status":        event.Status,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	}
	if event.UserID != nil {
		fields["actor_id"] = *event.UserID
	}
	if event.OrganizationID != nil {
		fields["organization_id"] = *event.OrganizationID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.log.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	if event.Status == StatusSuccess {
		entry.Info(msg)
	} else {
		entry.Warn(msg)
	}
	return nil
}
