package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
)

var expenseColumns = []string{
	"id", "user_id", "amount", "description", "date", "category",
	"property_type", "tax_deductible", "attachment_filename", "attachment_path",
	"created_at",
}

// CreateExpenseRequest wraps parameters for creating a ledger expense. The
// attachment fields carry the source receipt file when the expense originates
// from the extraction pipeline.
type CreateExpenseRequest struct {
	UserID             uuid.UUID
	Amount             decimal.Decimal
	Description        string
	Date               time.Time
	Category           string
	PropertyType       *string
	TaxDeductible      bool
	AttachmentFilename *string
	AttachmentPath     *string
}

type ExpenseRepository interface {
	Create(ctx context.Context, req *CreateExpenseRequest) (*entity.Expense, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Expense, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Expense, error)
	ListByDateRange(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*entity.Expense, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type expenseRepository struct {
	drv     *entsql.Driver
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewExpenseRepository(drv *entsql.Driver, logger *slog.Logger) ExpenseRepository {
	return &expenseRepository{
		drv:     drv,
		builder: entsql.Dialect(drv.Dialect()),
		logger:  logger,
	}
}

func (r *expenseRepository) Create(ctx context.Context, req *CreateExpenseRequest) (*entity.Expense, error) {
	e := &entity.Expense{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Amount:             req.Amount,
		Description:        req.Description,
		Date:               req.Date,
		Category:           req.Category,
		PropertyType:       req.PropertyType,
		TaxDeductible:      req.TaxDeductible,
		AttachmentFilename: req.AttachmentFilename,
		AttachmentPath:     req.AttachmentPath,
		CreatedAt:          time.Now().UTC(),
	}
	if e.Date.IsZero() {
		e.Date = e.CreatedAt
	}
	query, args := r.builder.Insert(tableExpenses).
		Columns(expenseColumns...).
		Values(
			e.ID, e.UserID, e.Amount, e.Description, e.Date, e.Category,
			strVal(e.PropertyType), e.TaxDeductible, strVal(e.AttachmentFilename), strVal(e.AttachmentPath),
			e.CreatedAt,
		).
		Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create expense", "user_id", req.UserID, "error", err)
		return nil, err
	}
	return e, nil
}

func (r *expenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Expense, error) {
	query, args := r.builder.Select(expenseColumns...).
		From(r.builder.Table(tableExpenses)).
		Where(entsql.EQ("id", id)).
		Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.NotFoundError("expense")
	}
	return scanExpense(rows)
}

func (r *expenseRepository) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	s := r.builder.Select(expenseColumns...).
		From(r.builder.Table(tableExpenses)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("date"), entsql.Desc("created_at")).
		Limit(limit)
	if offset > 0 {
		s.Offset(offset)
	}
	query, args := s.Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list expenses", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByDateRange returns the user's expenses inside the inclusive date
// window, oldest first. Nil bounds are open.
func (r *expenseRepository) ListByDateRange(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*entity.Expense, error) {
	s := r.builder.Select(expenseColumns...).
		From(r.builder.Table(tableExpenses)).
		Where(entsql.EQ("user_id", userID))
	if from != nil {
		s.Where(entsql.GTE("date", *from))
	}
	if to != nil {
		s.Where(entsql.LTE("date", *to))
	}
	query, args := s.OrderBy(entsql.Asc("date"), entsql.Asc("created_at")).Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list expenses by date", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *expenseRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query, args := r.builder.Delete(tableExpenses).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))).
		Query()
	res, err := r.drv.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to delete expense", "expense_id", id, "error", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NotFoundError("expense")
	}
	return nil
}

func scanExpense(rows *sql.Rows) (*entity.Expense, error) {
	var (
		e            entity.Expense
		propertyType sql.NullString
		attName      sql.NullString
		attPath      sql.NullString
	)
	if err := rows.Scan(
		&e.ID, &e.UserID, &e.Amount, &e.Description, &e.Date, &e.Category,
		&propertyType, &e.TaxDeductible, &attName, &attPath,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.PropertyType = strPtr(propertyType)
	e.AttachmentFilename = strPtr(attName)
	e.AttachmentPath = strPtr(attPath)
	return &e, nil
}
