package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
)

var receiptColumns = []string{
	"id", "user_id", "filename", "file_path", "file_ext", "content_hash",
	"status", "progress", "error_message", "processing_seconds", "feedback",
	"merchant_name", "receipt_date", "receipt_total", "processed", "verified",
	"created_at", "updated_at",
}

// CreateReceiptRequest wraps parameters for creating a receipt row.
type CreateReceiptRequest struct {
	UserID      uuid.UUID
	Filename    string
	FilePath    string
	FileExt     string
	ContentHash []byte
}

// ReceiptRepository stores receipt rows. GetByID is unscoped so callers can
// distinguish a missing row from one owned by someone else; every other read
// and write is scoped by user id.
type ReceiptRepository interface {
	Create(ctx context.Context, req *CreateReceiptRequest) (*entity.Receipt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Receipt, error)
	ListByMerchant(ctx context.Context, userID uuid.UUID, merchant string) ([]*entity.Receipt, error)
	Update(ctx context.Context, id, userID uuid.UUID, upd entity.ReceiptUpdate) (*entity.Receipt, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd entity.StatusUpdate) error
	FindByContentHash(ctx context.Context, userID uuid.UUID, hash []byte) (*entity.Receipt, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type receiptRepository struct {
	drv     *entsql.Driver
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewReceiptRepository(drv *entsql.Driver, logger *slog.Logger) ReceiptRepository {
	return &receiptRepository{
		drv:     drv,
		builder: entsql.Dialect(drv.Dialect()),
		logger:  logger,
	}
}

func (r *receiptRepository) Create(ctx context.Context, req *CreateReceiptRequest) (*entity.Receipt, error) {
	now := time.Now().UTC()
	rec := &entity.Receipt{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Filename:    req.Filename,
		FilePath:    req.FilePath,
		FileExt:     req.FileExt,
		ContentHash: req.ContentHash,
		Status:      string(constants.JobStatusPending),
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query, args := r.builder.Insert(tableReceipts).
		Columns(receiptColumns...).
		Values(
			rec.ID, rec.UserID, rec.Filename, rec.FilePath, rec.FileExt, rec.ContentHash,
			rec.Status, rec.Progress, nil, nil, nil,
			nil, nil, nil, rec.Processed, rec.Verified,
			rec.CreatedAt, rec.UpdatedAt,
		).
		Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create receipt", "user_id", req.UserID, "filename", req.Filename, "error", err)
		return nil, err
	}
	r.logger.Debug("receipt created", "receipt_id", rec.ID, "user_id", rec.UserID)
	return rec, nil
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *receiptRepository) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	s := r.builder.Select(receiptColumns...).
		From(r.builder.Table(tableReceipts)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit)
	if offset > 0 {
		s.Offset(offset)
	}
	query, args := s.Query()
	return r.list(ctx, query, args)
}

func (r *receiptRepository) ListByMerchant(ctx context.Context, userID uuid.UUID, merchant string) ([]*entity.Receipt, error) {
	query, args := r.builder.Select(receiptColumns...).
		From(r.builder.Table(tableReceipts)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("merchant_name", merchant))).
		OrderBy(entsql.Desc("created_at")).
		Query()
	return r.list(ctx, query, args)
}

func (r *receiptRepository) Update(ctx context.Context, id, userID uuid.UUID, upd entity.ReceiptUpdate) (*entity.Receipt, error) {
	owned := entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))

	b := r.builder.Update(tableReceipts)
	if upd.MerchantName != nil {
		b.Set("merchant_name", *upd.MerchantName)
	}
	if upd.ReceiptDate != nil {
		b.Set("receipt_date", *upd.ReceiptDate)
	}
	if upd.ReceiptTotal != nil {
		b.Set("receipt_total", *upd.ReceiptTotal)
	}
	if upd.Verified != nil {
		b.Set("verified", *upd.Verified)
	}
	if upd.Processed != nil {
		b.Set("processed", *upd.Processed)
	}
	if upd.Feedback != nil {
		v, err := feedbackValue(upd.Feedback)
		if err != nil {
			return nil, err
		}
		b.Set("feedback", v)
	}
	b.Set("updated_at", time.Now().UTC())
	b.Where(owned)

	query, args := b.Query()
	res, err := r.drv.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update receipt", "receipt_id", id, "error", err)
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, common.NotFoundError("receipt")
	}
	return r.getOne(ctx, owned)
}

// UpdateStatus is last-write-wins; the orchestrator guards terminal states
// before calling. A completed transition also stamps processed and the elapsed
// processing time.
func (r *receiptRepository) UpdateStatus(ctx context.Context, id uuid.UUID, upd entity.StatusUpdate) error {
	now := time.Now().UTC()
	b := r.builder.Update(tableReceipts).
		Set("status", upd.Status).
		Set("updated_at", now)
	if upd.Progress != nil {
		b.Set("progress", *upd.Progress)
	}
	if upd.ErrorMessage != nil {
		b.Set("error_message", *upd.ErrorMessage)
	}
	if constants.JobStatus(upd.Status) == constants.JobStatusCompleted {
		rec, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		b.Set("processed", true)
		b.Set("processing_seconds", now.Sub(rec.CreatedAt).Seconds())
	}
	b.Where(entsql.EQ("id", id))

	query, args := b.Query()
	res, err := r.drv.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update receipt status", "receipt_id", id, "status", upd.Status, "error", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NotFoundError("receipt")
	}
	r.logger.Debug("receipt status updated", "receipt_id", id, "status", upd.Status)
	return nil
}

// FindByContentHash returns the newest receipt with the given content hash, or
// nil when the user has never uploaded it. Absence is not an error here.
func (r *receiptRepository) FindByContentHash(ctx context.Context, userID uuid.UUID, hash []byte) (*entity.Receipt, error) {
	query, args := r.builder.Select(receiptColumns...).
		From(r.builder.Table(tableReceipts)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("content_hash", hash))).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
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
		return nil, nil
	}
	return scanReceipt(rows)
}

// Delete removes the receipt, its transactions and the stored file. File
// removal is best-effort; a missing file does not fail the delete.
func (r *receiptRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	rec, err := r.getOne(ctx, entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID)))
	if err != nil {
		return err
	}

	query, args := r.builder.Delete(tableTransactions).Where(entsql.EQ("receipt_id", id)).Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to delete receipt transactions", "receipt_id", id, "error", err)
		return err
	}
	query, args = r.builder.Delete(tableReceipts).Where(entsql.EQ("id", id)).Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to delete receipt", "receipt_id", id, "error", err)
		return err
	}

	if rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove receipt file", "receipt_id", id, "path", rec.FilePath, "error", err)
		}
	}
	r.logger.Info("receipt deleted", "receipt_id", id, "user_id", userID)
	return nil
}

func (r *receiptRepository) getOne(ctx context.Context, pred *entsql.Predicate) (*entity.Receipt, error) {
	query, args := r.builder.Select(receiptColumns...).
		From(r.builder.Table(tableReceipts)).
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
		return nil, common.NotFoundError("receipt")
	}
	return scanReceipt(rows)
}

func (r *receiptRepository) list(ctx context.Context, query string, args []any) ([]*entity.Receipt, error) {
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list receipts", "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanReceipt(rows *sql.Rows) (*entity.Receipt, error) {
	var (
		rec          entity.Receipt
		errMsg       sql.NullString
		procSeconds  sql.NullFloat64
		feedback     sql.NullString
		merchant     sql.NullString
		receiptDate  sql.NullTime
		receiptTotal decimal.NullDecimal
	)
	if err := rows.Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &rec.FilePath, &rec.FileExt, &rec.ContentHash,
		&rec.Status, &rec.Progress, &errMsg, &procSeconds, &feedback,
		&merchant, &receiptDate, &receiptTotal, &rec.Processed, &rec.Verified,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.ErrorMessage = strPtr(errMsg)
	rec.ProcessingSeconds = floatPtr(procSeconds)
	rec.MerchantName = strPtr(merchant)
	rec.ReceiptDate = timePtr(receiptDate)
	rec.ReceiptTotal = decimalPtr(receiptTotal)
	fb, err := feedbackFromColumn(feedback)
	if err != nil {
		return nil, err
	}
	rec.Feedback = fb
	return &rec, nil
}

func feedbackValue(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding feedback: %w", err)
	}
	return string(b), nil
}

func feedbackFromColumn(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, fmt.Errorf("decoding feedback: %w", err)
	}
	return m, nil
}
