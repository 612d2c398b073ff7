package contracts

import (
	"time"

	"github.com/contractguard/contractguard/pkg/apperrors"
)

// Status is the lifecycle state of a contract
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

// RiskLevel is the assessed risk of a contract
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Contract is an agreement tracked by an organization
type Contract struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organizationId"`
	Title          string     `json:"title"`
	Counterparty   string     `json:"counterparty"`
	ValueCents     int64      `json:"valueCents"`
	Currency       string     `json:"currency"`
	Status         Status     `json:"status"`
	RiskLevel      RiskLevel  `json:"riskLevel"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	CreatedBy      *int64     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CreateRequest is the body of POST /contracts
type CreateRequest struct {
	Title        string     `json:"title" validate:"required,max=255"`
	Counterparty string     `json:"counterparty" validate:"max=255"`
	ValueCents   int64      `json:"valueCents" validate:"gte=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	Status       Status     `json:"status" validate:"omitempty,oneof=draft active expired terminated"`
	RiskLevel    RiskLevel  `json:"riskLevel" validate:"omitempty,oneof=low medium high critical"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
}

// UpdateRequest is the body of PATCH /contracts/{id}. Nil fields are left as is.
type UpdateRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Counterparty *string    `json:"counterparty" validate:"omitempty,max=255"`
	ValueCents   *int64     `json:"valueCents" validate:"omitempty,gte=0"`
	Currency     *string    `json:"currency" validate:"omitempty,len=3"`
	Status       *Status    `json:"status" validate:"omitempty,oneof=draft active expired terminated"`
	RiskLevel    *RiskLevel `json:"riskLevel" validate:"omitempty,oneof=low medium high critical"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
}

// Scope limits which contracts a caller can see
type Scope struct {
	OrganizationID int64
	// OwnerID, when set, restricts results to contracts created by that user
	OwnerID *int64
}

// ListFilter selects a page of contracts
type ListFilter struct {
	Status    Status
	RiskLevel RiskLevel
	Page      int
	PageSize  int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (Page-1)*PageSize far from int overflow
	maxPage = 10000
)

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > maxPage {
		f.Page = maxPage
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
}

// Page is one page of a contract listing
type Page struct {
	Contracts []Contract `json:"contracts"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"pageSize"`
}

// DashboardStats summarizes the contracts visible to a caller
type DashboardStats struct {
	Total           int               `json:"total"`
	ByStatus        map[Status]int    `json:"byStatus"`
	ByRisk          map[RiskLevel]int `json:"byRisk"`
	TotalValueCents int64             `json:"totalValueCents"`
	ExpiringSoon    int               `json:"expiringSoon"`
}

// ExpiringWindow is how far ahead DashboardStats.ExpiringSoon looks
const ExpiringWindow = 30 * 24 * time.Hour

var (
	// ErrContractNotFound is returned for unknown or invisible contracts
	ErrContractNotFound = apperrors.NotFound("contract not found")
	// ErrInvalidDates is returned when a contract ends before it starts
	ErrInvalidDates = apperrors.Invalid("endDate must not be before startDate")
	// ErrInvalidFilter is returned for unknown status or risk filters
	ErrInvalidFilter = apperrors.Invalid("invalid filter")
	// ErrPageOutOfRange is returned for page numbers beyond the listing limit
	ErrPageOutOfRange = apperrors.Invalidf("page must not exceed %d", maxPage)
)

func validStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusActive, StatusExpired, StatusTerminated:
		return true
	}
	return false
}

func validRisk(r RiskLevel) bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}
