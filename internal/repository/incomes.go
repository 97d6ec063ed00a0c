package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/internal/entity"
)

var incomeColumns = []string{
	"id", "user_id", "amount", "description", "date", "category", "created_at",
}

// CreateIncomeRequest wraps parameters for creating a ledger income entry.
type CreateIncomeRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	Category    string
}

type IncomeRepository interface {
	Create(ctx context.Context, req *CreateIncomeRequest) (*entity.Income, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Income, error)
}

type incomeRepository struct {
	drv     *entsql.Driver
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewIncomeRepository(drv *entsql.Driver, logger *slog.Logger) IncomeRepository {
	return &incomeRepository{
		drv:     drv,
		builder: entsql.Dialect(drv.Dialect()),
		logger:  logger,
	}
}

func (r *incomeRepository) Create(ctx context.Context, req *CreateIncomeRequest) (*entity.Income, error) {
	in := &entity.Income{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
		Category:    req.Category,
		CreatedAt:   time.Now().UTC(),
	}
	if in.Date.IsZero() {
		in.Date = in.CreatedAt
	}
	query, args := r.builder.Insert(tableIncomes).
		Columns(incomeColumns...).
		Values(in.ID, in.UserID, in.Amount, in.Description, in.Date, in.Category, in.CreatedAt).
		Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create income", "user_id", req.UserID, "error", err)
		return nil, err
	}
	return in, nil
}

func (r *incomeRepository) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Income, error) {
	if limit <= 0 {
		limit = 100
	}
	s := r.builder.Select(incomeColumns...).
		From(r.builder.Table(tableIncomes)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("date"), entsql.Desc("created_at")).
		Limit(limit)
	if offset > 0 {
		s.Offset(offset)
	}
	query, args := s.Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list incomes", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Income
	for rows.Next() {
		var in entity.Income
		if err := rows.Scan(&in.ID, &in.UserID, &in.Amount, &in.Description, &in.Date, &in.Category, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
