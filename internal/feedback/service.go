// Package feedback applies user corrections to extracted transactions and
// feeds confirmed categorizations back into the hint vocabulary.
package feedback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
)

// TransactionStore is the slice of the transaction repository this service
// needs.
type TransactionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error)
	Update(ctx context.Context, id uuid.UUID, upd entity.TransactionUpdate) (*entity.Transaction, error)
}

// ReceiptStore is the slice of the receipt repository this service needs.
type ReceiptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	Update(ctx context.Context, id, userID uuid.UUID, upd entity.ReceiptUpdate) (*entity.Receipt, error)
}

// Service records feedback on receipts and transactions. Transaction feedback
// is the sole mutation path for the hint table besides its initial load.
type Service struct {
	txs      TransactionStore
	receipts ReceiptStore
	hints    *hints.Table
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(txs TransactionStore, receipts ReceiptStore, table *hints.Table, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		txs:      txs,
		receipts: receipts,
		hints:    table,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordTransactionFeedback appends a correction-history entry capturing the
// pre-correction values, applies the present fields, and marks the
// transaction verified and user-verified. When the feedback carries both a
// corrected category and the original description, the pair is folded into
// the hint table; hint persistence is best-effort and never fails the
// feedback itself.
func (s *Service) RecordTransactionFeedback(ctx context.Context, userID, txID uuid.UUID, corr entity.TransactionCorrection) (*entity.Transaction, error) {
	tx, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	rec, err := s.receipts.GetByID(ctx, tx.ReceiptID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, common.ForbiddenError("transaction belongs to a different user")
	}

	prevDate := tx.Date.Format("2006-01-02")
	history := make(map[string]entity.CorrectionEntry, len(tx.CorrectionHistory)+1)
	for k, v := range tx.CorrectionHistory {
		history[k] = v
	}
	history[s.now().UTC().Format(time.RFC3339Nano)] = entity.CorrectionEntry{
		Previous: entity.TransactionSnapshot{
			Description: tx.Description,
			Amount:      tx.Amount,
			Date:        &prevDate,
			Category:    tx.Category,
		},
		Corrections: corr,
	}

	verified := true
	upd := entity.TransactionUpdate{
		Description:       corr.Description,
		Amount:            corr.Amount,
		Category:          corr.Category,
		Verified:          &verified,
		UserVerified:      &verified,
		CorrectionHistory: history,
	}
	if corr.Date != nil {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*corr.Date))
		if err != nil {
			return nil, common.InvalidInputErrorf("correct_date %q is not a YYYY-MM-DD date", *corr.Date)
		}
		upd.Date = &d
	}

	updated, err := s.txs.Update(ctx, txID, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction feedback recorded",
		"transaction_id", txID, "user_id", userID, "corrections", len(history))

	if corr.Category != nil && corr.OriginalDescription != nil {
		s.hints.Learn(ctx, *corr.OriginalDescription, *corr.Category)
	}
	return updated, nil
}

// RecordReceiptFeedback merges the submitted keys into the receipt's feedback
// map, overwriting on collision.
func (s *Service) RecordReceiptFeedback(ctx context.Context, userID, receiptID uuid.UUID, fb map[string]any) (*entity.Receipt, error) {
	rec, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, common.ForbiddenError("receipt belongs to a different user")
	}

	merged := make(map[string]any, len(rec.Feedback)+len(fb))
	for k, v := range rec.Feedback {
		merged[k] = v
	}
	for k, v := range fb {
		merged[k] = v
	}

	updated, err := s.receipts.Update(ctx, receiptID, userID, entity.ReceiptUpdate{Feedback: merged})
	if err != nil {
		return nil, err
	}
	s.logger.Info("receipt feedback recorded", "receipt_id", receiptID, "user_id", userID, "keys", len(fb))
	return updated, nil
}
