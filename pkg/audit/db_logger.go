package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger persists audit events to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log implements Logger
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata interface{}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(raw)
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			event_type, organization_id, user_id, resource_type, resource_id,
			status, message, metadata, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		string(event.EventType), event.OrganizationID, event.UserID,
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		string(event.Status), nullString(event.Message), metadata,
		nullString(event.RequestID), event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListForOrganization returns the newest events of an organization
func (l *DBLogger) ListForOrganization(ctx context.Context, orgID int64, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, organization_id, user_id, resource_type, resource_id,
		       status, message, metadata, request_id, created_at
		FROM audit_events
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e                                        Event
			eventType, status                        string
			orgID, userID                            sql.NullInt64
			resType, resID, msg, metadata, requestID sql.NullString
		)
		if err := rows.Scan(&e.ID, &eventType, &orgID, &userID, &resType, &resID,
			&status, &msg, &metadata, &requestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Status = EventStatus(status)
		if orgID.Valid {
			e.OrganizationID = &orgID.Int64
		}
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		e.ResourceType = ResourceType(resType.String)
		e.ResourceID = resID.String
		e.Message = msg.String
		e.RequestID = requestID.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
