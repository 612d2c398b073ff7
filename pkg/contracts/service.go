package contracts

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
)

const defaultCurrency = "usd"

// Service implements contract CRUD and dashboard statistics
type Service struct {
	store *Store
	audit audit.Logger
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new contract service
func NewService(db *sql.DB, auditLogger audit.Logger, log logrus.FieldLogger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Service{
		store: NewStore(db),
		audit: auditLogger,
		log:   log.WithField("component", "contracts"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new contract in the caller's organization
func (s *Service) Create(ctx context.Context, ac *auth.AuthContext, req *CreateRequest) (*Contract, error) {
	if err := checkDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	now := s.now()
	creator := ac.UserID
	c := &Contract{
		OrganizationID: ac.OrganizationID,
		Title:          strings.TrimSpace(req.Title),
		Counterparty:   req.Counterparty,
		ValueCents:     req.ValueCents,
		Currency:       strings.ToLower(req.Currency),
		Status:         req.Status,
		RiskLevel:      req.RiskLevel,
		StartDate:      utc(req.StartDate),
		EndDate:        utc(req.EndDate),
		CreatedBy:      &creator,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c.Currency == "" {
		c.Currency = defaultCurrency
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	if c.RiskLevel == "" {
		c.RiskLevel = RiskLow
	}

	if err := s.store.Insert(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, ac, audit.NewEvent(audit.EventTypeContractCreate, audit.ResourceContract, c.ID).
		With("title", c.Title).
		With("risk_level", string(c.RiskLevel)))
	return c, nil
}

// Get returns a contract visible in scope
func (s *Service) Get(ctx context.Context, scope Scope, id int64) (*Contract, error) {
	return s.store.Get(ctx, scope, id)
}

// List returns a filtered page of contracts visible in scope
func (s *Service) List(ctx context.Context, scope Scope, filter ListFilter) (*Page, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, ErrInvalidFilter
	}
	if filter.RiskLevel != "" && !validRisk(filter.RiskLevel) {
		return nil, ErrInvalidFilter
	}
	if filter.Page > maxPage {
		return nil, ErrPageOutOfRange
	}
	return s.store.List(ctx, scope, filter)
}

// Update changes a contract in the caller's organization
func (s *Service) Update(ctx context.Context, ac *auth.AuthContext, id int64, req *UpdateRequest) (*Contract, error) {
	orgScope := Scope{OrganizationID: ac.OrganizationID}
	current, err := s.store.Get(ctx, orgScope, id)
	if err != nil {
		return nil, err
	}

	start, end := current.StartDate, current.EndDate
	if req.StartDate != nil {
		start = req.StartDate
	}
	if req.EndDate != nil {
		end = req.EndDate
	}
	if err := checkDates(start, end); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, ac.OrganizationID, id, req, s.now()); err != nil {
		return nil, err
	}

	s.record(ctx, ac, audit.NewEvent(audit.EventTypeContractUpdate, audit.ResourceContract, id))
	return s.store.Get(ctx, orgScope, id)
}

// Delete removes a contract from the caller's organization
func (s *Service) Delete(ctx context.Context, ac *auth.AuthContext, id int64) error {
	if err := s.store.Delete(ctx, ac.OrganizationID, id); err != nil {
		return err
	}
	s.record(ctx, ac, audit.NewEvent(audit.EventTypeContractDelete, audit.ResourceContract, id))
	return nil
}

// Stats computes dashboard statistics over the contracts visible in scope.
// The aggregates are queried concurrently.
func (s *Service) Stats(ctx context.Context, scope Scope) (*DashboardStats, error) {
	stats := &DashboardStats{
		ByStatus: make(map[Status]int),
		ByRisk:   make(map[RiskLevel]int),
	}
	var byStatus, byRisk map[string]int
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.store.countBy(gctx, scope, "status")
		return err
	})
	g.Go(func() error {
		var err error
		byRisk, err = s.store.countBy(gctx, scope, "risk_level")
		return err
	})
	g.Go(func() error {
		var err error
		stats.TotalValueCents, err = s.store.totalValue(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ExpiringSoon, err = s.store.expiringBetween(gctx, scope, now, now.Add(ExpiringWindow))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for k, n := range byStatus {
		stats.ByStatus[Status(k)] = n
		stats.Total += n
	}
	for k, n := range byRisk {
		stats.ByRisk[RiskLevel(k)] = n
	}
	return stats, nil
}

func (s *Service) record(ctx context.Context, ac *auth.AuthContext, event *audit.Event) {
	event.ByUser(ac.UserID, ac.OrganizationID)
	audit.Record(ctx, s.audit, event)
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return ErrInvalidDates
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
