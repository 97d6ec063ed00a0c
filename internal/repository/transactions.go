package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
)

var transactionColumns = []string{
	"id", "receipt_id", "description", "amount", "date", "category",
	"original_text", "confidence_score", "verified", "user_verified",
	"added_to_expenses", "expense_id", "correction_history",
	"created_at", "updated_at",
}

// CreateTransactionRequest wraps parameters for persisting one extracted line
// item. Date, Category and Confidence are optional; missing values fall back
// to now, the default category and full confidence.
type CreateTransactionRequest struct {
	ReceiptID    uuid.UUID
	Description  string
	Amount       decimal.Decimal
	Date         time.Time
	Category     string
	OriginalText *string
	Confidence   float64
}

type TransactionRepository interface {
	Create(ctx context.Context, req *CreateTransactionRequest) (*entity.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.Transaction, error)
	Update(ctx context.Context, id uuid.UUID, upd entity.TransactionUpdate) (*entity.Transaction, error)
}

type transactionRepository struct {
	drv     *entsql.Driver
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewTransactionRepository(drv *entsql.Driver, logger *slog.Logger) TransactionRepository {
	return &transactionRepository{
		drv:     drv,
		builder: entsql.Dialect(drv.Dialect()),
		logger:  logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, req *CreateTransactionRequest) (*entity.Transaction, error) {
	now := time.Now().UTC()
	tx := &entity.Transaction{
		ID:              uuid.New(),
		ReceiptID:       req.ReceiptID,
		Description:     req.Description,
		Amount:          req.Amount,
		Date:            req.Date,
		Category:        req.Category,
		OriginalText:    req.OriginalText,
		ConfidenceScore: req.Confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}
	if tx.Category == "" {
		tx.Category = constants.DefaultCategory
	}
	if tx.ConfidenceScore <= 0 || tx.ConfidenceScore > 1 {
		tx.ConfidenceScore = 1.0
	}

	query, args := r.builder.Insert(tableTransactions).
		Columns(transactionColumns...).
		Values(
			tx.ID, tx.ReceiptID, tx.Description, tx.Amount, tx.Date, tx.Category,
			strVal(tx.OriginalText), tx.ConfidenceScore, tx.Verified, tx.UserVerified,
			tx.AddedToExpenses, nil, nil,
			tx.CreatedAt, tx.UpdatedAt,
		).
		Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create transaction", "receipt_id", req.ReceiptID, "error", err)
		return nil, err
	}
	return tx, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *transactionRepository) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.Transaction, error) {
	query, args := r.builder.Select(transactionColumns...).
		From(r.builder.Table(tableTransactions)).
		Where(entsql.EQ("receipt_id", receiptID)).
		OrderBy(entsql.Asc("created_at")).
		Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list transactions", "receipt_id", receiptID, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transactionRepository) Update(ctx context.Context, id uuid.UUID, upd entity.TransactionUpdate) (*entity.Transaction, error) {
	b := r.builder.Update(tableTransactions)
	if upd.Description != nil {
		b.Set("description", *upd.Description)
	}
	if upd.Amount != nil {
		b.Set("amount", *upd.Amount)
	}
	if upd.Date != nil {
		b.Set("date", *upd.Date)
	}
	if upd.Category != nil {
		b.Set("category", *upd.Category)
	}
	if upd.Verified != nil {
		b.Set("verified", *upd.Verified)
	}
	if upd.UserVerified != nil {
		b.Set("user_verified", *upd.UserVerified)
	}
	if upd.AddedToExpenses != nil {
		b.Set("added_to_expenses", *upd.AddedToExpenses)
	}
	if upd.ExpenseID != nil {
		b.Set("expense_id", *upd.ExpenseID)
	}
	if upd.CorrectionHistory != nil {
		v, err := historyValue(upd.CorrectionHistory)
		if err != nil {
			return nil, err
		}
		b.Set("correction_history", v)
	}
	b.Set("updated_at", time.Now().UTC())
	b.Where(entsql.EQ("id", id))

	query, args := b.Query()
	res, err := r.drv.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update transaction", "transaction_id", id, "error", err)
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, common.NotFoundError("transaction")
	}
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *transactionRepository) getOne(ctx context.Context, pred *entsql.Predicate) (*entity.Transaction, error) {
	query, args := r.builder.Select(transactionColumns...).
		From(r.builder.Table(tableTransactions)).
		Where(pred).
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
		return nil, common.NotFoundError("transaction")
	}
	return scanTransaction(rows)
}

func scanTransaction(rows *sql.Rows) (*entity.Transaction, error) {
	var (
		tx        entity.Transaction
		origText  sql.NullString
		expenseID sql.NullString
		history   sql.NullString
	)
	if err := rows.Scan(
		&tx.ID, &tx.ReceiptID, &tx.Description, &tx.Amount, &tx.Date, &tx.Category,
		&origText, &tx.ConfidenceScore, &tx.Verified, &tx.UserVerified,
		&tx.AddedToExpenses, &expenseID, &history,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.OriginalText = strPtr(origText)
	eid, err := uuidPtr(expenseID)
	if err != nil {
		return nil, fmt.Errorf("decoding expense id: %w", err)
	}
	tx.ExpenseID = eid
	hist, err := historyFromColumn(history)
	if err != nil {
		return nil, err
	}
	tx.CorrectionHistory = hist
	return &tx, nil
}

func historyValue(h map[string]entity.CorrectionEntry) (any, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encoding correction history: %w", err)
	}
	return string(b), nil
}

func historyFromColumn(ns sql.NullString) (map[string]entity.CorrectionEntry, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var h map[string]entity.CorrectionEntry
	if err := json.Unmarshal([]byte(ns.String), &h); err != nil {
		return nil, fmt.Errorf("decoding correction history: %w", err)
	}
	return h, nil
}
