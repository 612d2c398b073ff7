package orgs

import (
	"time"

	"github.com/contractguard/contractguard/pkg/apperrors"
)

// Organization is a tenant with its current subscription summary
type Organization struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	OwnerID            *int64    `json:"ownerId,omitempty"`
	PlanName           string    `json:"planName,omitempty"`
	SubscriptionStatus string    `json:"subscriptionStatus,omitempty"`
	MemberCount        int       `json:"memberCount"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// RenameRequest is the body of PATCH /organization
type RenameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

var (
	// ErrOrganizationNotFound is returned for an unknown organization id
	ErrOrganizationNotFound = apperrors.NotFound("organization not found")
	// ErrNotOwner is returned when a non-owner tries an owner-only action
	ErrNotOwner = apperrors.Forbidden("only the organization owner can do this")

	errNameRequired = apperrors.Invalid("name is required")
)
