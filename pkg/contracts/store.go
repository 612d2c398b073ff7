package contracts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contractguard/contractguard/pkg/database"
)

const contractColumns = `id, organization_id, title, counterparty, value_cents, currency, status,
	risk_level, start_date, end_date, created_by, created_at, updated_at`

// Store is the database access layer for contracts
type Store struct {
	db database.Querier
}

// NewStore creates a contract store
func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (*Contract, error) {
	var (
		c                  Contract
		status, risk       string
		startDate, endDate sql.NullTime
		createdBy          sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Title, &c.Counterparty, &c.ValueCents, &c.Currency,
		&status, &risk, &startDate, &endDate, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	c.RiskLevel = RiskLevel(risk)
	if startDate.Valid {
		c.StartDate = &startDate.Time
	}
	if endDate.Valid {
		c.EndDate = &endDate.Time
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.Int64
	}
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// scopeClause returns the WHERE conditions and args for scope, numbering
// placeholders from 1
func scopeClause(scope Scope) ([]string, []interface{}) {
	conditions := []string{"organization_id = $1"}
	args := []interface{}{scope.OrganizationID}
	if scope.OwnerID != nil {
		conditions = append(conditions, "created_by = $2")
		args = append(args, *scope.OwnerID)
	}
	return conditions, args
}

// Insert stores c and fills in its id
func (s *Store) Insert(ctx context.Context, c *Contract) error {
	var createdBy interface{}
	if c.CreatedBy != nil {
		createdBy = *c.CreatedBy
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contracts (organization_id, title, counterparty, value_cents, currency, status,
		                       risk_level, start_date, end_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		c.OrganizationID, c.Title, c.Counterparty, c.ValueCents, c.Currency, string(c.Status),
		string(c.RiskLevel), nullTime(c.StartDate), nullTime(c.EndDate), createdBy, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// Get returns contract id if it is visible in scope
func (s *Store) Get(ctx context.Context, scope Scope, id int64) (*Contract, error) {
	conditions, args := scopeClause(scope)
	conditions = append(conditions, fmt.Sprintf("id = $%d", len(args)+1))
	args = append(args, id)

	c, err := scanContract(s.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE "+strings.Join(conditions, " AND "), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// List returns a page of contracts visible in scope, newest first
func (s *Store) List(ctx context.Context, scope Scope, filter ListFilter) (*Page, error) {
	filter.normalize()
	conditions, args := scopeClause(scope)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, string(filter.RiskLevel))
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page := &Page{Contracts: []Contract{}, Page: filter.Page, PageSize: filter.PageSize}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts WHERE "+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count contracts: %w", err)
	}

	limitPos := len(args) + 1
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM contracts WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		contractColumns, where, limitPos, limitPos+1), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		page.Contracts = append(page.Contracts, *c)
	}
	return page, rows.Err()
}

// Update writes the changed fields of req to contract id in orgID
func (s *Store) Update(ctx context.Context, orgID, id int64, req *UpdateRequest, now time.Time) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if req.Title != nil {
		set("title", strings.TrimSpace(*req.Title))
	}
	if req.Counterparty != nil {
		set("counterparty", *req.Counterparty)
	}
	if req.ValueCents != nil {
		set("value_cents", *req.ValueCents)
	}
	if req.Currency != nil {
		set("currency", strings.ToLower(*req.Currency))
	}
	if req.Status != nil {
		set("status", string(*req.Status))
	}
	if req.RiskLevel != nil {
		set("risk_level", string(*req.RiskLevel))
	}
	if req.StartDate != nil {
		set("start_date", nullTime(req.StartDate))
	}
	if req.EndDate != nil {
		set("end_date", nullTime(req.EndDate))
	}
	set("updated_at", now)

	args = append(args, id, orgID)
	query := fmt.Sprintf("UPDATE contracts SET %s WHERE id = $%d AND organization_id = $%d",
		strings.Join(setClauses, ", "), argPos, argPos+1)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrContractNotFound
	}
	return nil
}

// Delete removes contract id from orgID
func (s *Store) Delete(ctx context.Context, orgID, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = $1 AND organization_id = $2", id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrContractNotFound
	}
	return nil
}

// countBy groups the contracts in scope by column
func (s *Store) countBy(ctx context.Context, scope Scope, column string) (map[string]int, error) {
	conditions, args := scopeClause(scope)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM contracts WHERE %s GROUP BY %s", column, strings.Join(conditions, " AND "), column), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count contracts by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan contract count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// totalValue sums value_cents over the contracts in scope
func (s *Store) totalValue(ctx context.Context, scope Scope) (int64, error) {
	conditions, args := scopeClause(scope)
	var total int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(value_cents), 0) FROM contracts WHERE "+strings.Join(conditions, " AND "), args...,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum contract value: %w", err)
	}
	return total, nil
}

// expiringBetween counts active contracts in scope ending in [from, to]
func (s *Store) expiringBetween(ctx context.Context, scope Scope, from, to time.Time) (int, error) {
	conditions, args := scopeClause(scope)
	n := len(args)
	conditions = append(conditions,
		fmt.Sprintf("status = $%d", n+1),
		fmt.Sprintf("end_date >= $%d", n+2),
		fmt.Sprintf("end_date <= $%d", n+3),
	)
	args = append(args, string(StatusActive), from, to)

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contracts WHERE "+strings.Join(conditions, " AND "), args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count expiring contracts: %w", err)
	}
	return count, nil
}
