package audit

import (
	"strconv"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeLogin       EventType = "auth.login"
	EventTypeLoginFailed EventType = "auth.login_failed"
	EventTypeLogout      EventType = "auth.logout"
	EventTypeRegister    EventType = "auth.register"

	EventTypeRoleCreate      EventType = "rbac.role_create"
	EventTypeRoleUpdate      EventType = "rbac.role_update"
	EventTypeRoleDelete      EventType = "rbac.role_delete"
	EventTypeUserRolesChange EventType = "rbac.user_roles_change"
	EventTypeSystemRoleSync  EventType = "rbac.system_role_sync"
	EventTypeSessionsRevoked EventType = "rbac.sessions_revoked"
	EventTypeAccessDenied    EventType = "authz.access_denied"

	EventTypeOrgRename        EventType = "org.rename"
	EventTypePlanChange       EventType = "billing.plan_change"
	EventTypeSubscriptionSync EventType = "billing.subscription_sync"

	EventTypeContractCreate EventType = "contract.create"
	EventTypeContractUpdate EventType = "contract.update"
	EventTypeContractDelete EventType = "contract.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// ResourceType names the kind of object an event is about
type ResourceType string

const (
	ResourceRole         ResourceType = "role"
	ResourceUser         ResourceType = "user"
	ResourceOrganization ResourceType = "organization"
	ResourceSubscription ResourceType = "subscription"
	ResourceContract     ResourceType = "contract"
)

// Event is a single audit record
type Event struct {
	ID             int64                  `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	EventType      EventType              `json:"eventType"`
	Status         EventStatus            `json:"status"`
	OrganizationID *int64                 `json:"organizationId,omitempty"`
	UserID         *int64                 `json:"userId,omitempty"`
	ResourceType   ResourceType           `json:"resourceType,omitempty"`
	ResourceID     string                 `json:"resourceId,omitempty"`
	Message        string                 `json:"message,omitempty"`
	RequestID      string                 `json:"requestId,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent starts a successful event about a resource
func NewEvent(eventType EventType, resourceType ResourceType, resourceID int64) *Event {
	e := &Event{
		EventType:    eventType,
		Status:       StatusSuccess,
		ResourceType: resourceType,
	}
	if resourceID != 0 {
		e.ResourceID = strconv.FormatInt(resourceID, 10)
	}
	return e
}

// ByUser sets the acting user and their organization
func (e *Event) ByUser(userID, organizationID int64) *Event {
	if userID != 0 {
		e.UserID = &userID
	}
	if organizationID != 0 {
		e.OrganizationID = &organizationID
	}
	return e
}

// WithStatus overrides the outcome
func (e *Event) WithStatus(status EventStatus) *Event {
	e.Status = status
	return e
}

// WithMessage sets a human readable message
func (e *Event) WithMessage(msg string) *Event {
	e.Message = msg
	return e
}

// With adds a metadata entry
func (e *Event) With(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
