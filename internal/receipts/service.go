// Package receipts orchestrates the receipt extraction lifecycle: uploads
// become receipt rows, the pipeline advances them through pending ->
// processing -> completed|failed, and every transition stays observable
// through Status.
package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/ingest"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

// UploadStore persists raw upload bytes before a job row exists.
type UploadStore interface {
	SaveUpload(userID uuid.UUID, originalFilename string, data []byte) (ingest.StoredFile, error)
}

// Service handles receipt business logic on top of the processor: submission,
// status polling, CRUD, and the expense hand-off.
type Service struct {
	receipts  repository.ReceiptRepository
	txs       repository.TransactionRepository
	expenses  repository.ExpenseRepository
	files     UploadStore
	processor *Processor
	queue     async.Queue
	logger    *slog.Logger
}

// NewService creates a new receipt service.
func NewService(
	receipts repository.ReceiptRepository,
	txs repository.TransactionRepository,
	expenses repository.ExpenseRepository,
	files UploadStore,
	processor *Processor,
	queue async.Queue,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		receipts:  receipts,
		txs:       txs,
		expenses:  expenses,
		files:     files,
		processor: processor,
		queue:     queue,
		logger:    logger,
	}
}

// SubmitRequest carries one uploaded document.
type SubmitRequest struct {
	UserID   uuid.UUID
	Filename string
	Data     []byte
	Async    bool
}

// SubmitResult reports the outcome of an upload. Transactions is populated
// for synchronous submissions; Deduplicated marks a re-upload of content this
// user already submitted, in which case Receipt is the existing row.
type SubmitResult struct {
	Receipt      *entity.Receipt
	Transactions []*entity.Transaction
	Deduplicated bool
}

// Submit accepts an uploaded document and either runs the pipeline inline or
// queues it for background processing. In both modes the job row exists
// before Submit returns, so a failed job is always queryable. Synchronous
// pipeline errors propagate to the caller after the row is marked failed.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.UserID == uuid.Nil {
		return SubmitResult{}, common.InvalidInputError("user id is required")
	}
	if len(req.Data) == 0 {
		return SubmitResult{}, common.InvalidInputError("uploaded file is empty")
	}

	stored, err := s.files.SaveUpload(req.UserID, req.Filename, req.Data)
	if err != nil {
		return SubmitResult{}, err
	}

	existing, err := s.receipts.FindByContentHash(ctx, req.UserID, stored.Hash)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	if existing != nil {
		if err := os.Remove(stored.Path); err != nil {
			s.logger.Warn("failed to remove duplicate upload", "path", stored.Path, "error", err)
		}
		s.logger.Info("duplicate upload detected",
			"user_id", req.UserID, "receipt_id", existing.ID, "filename", req.Filename)
		txs, err := s.txs.ListByReceipt(ctx, existing.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Receipt: existing, Transactions: txs, Deduplicated: true}, nil
	}

	rec, err := s.receipts.Create(ctx, &repository.CreateReceiptRequest{
		UserID:      req.UserID,
		Filename:    req.Filename,
		FilePath:    stored.Path,
		FileExt:     stored.Ext,
		ContentHash: stored.Hash,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create receipt: %w", err)
	}
	s.logger.Info("receipt submitted",
		"receipt_id", rec.ID, "user_id", req.UserID, "filename", req.Filename, "async", req.Async)

	if !req.Async {
		fresh, txs, err := s.processor.Run(ctx, rec)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Receipt: fresh, Transactions: txs}, nil
	}

	if err := s.processor.transition(ctx, rec, constants.JobStatusProcessing, f64(progressQueued), "Receipt uploaded, queued for processing"); err != nil {
		return SubmitResult{}, s.processor.fail(ctx, rec, err)
	}
	job := async.Job{
		ReceiptID:   rec.ID,
		UserID:      req.UserID,
		SubmittedAt: time.Now(),
		TraceID:     common.RequestIDFromContext(ctx),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return SubmitResult{}, s.processor.fail(ctx, rec, fmt.Errorf("queue processing job: %w", err))
	}
	return SubmitResult{Receipt: rec}, nil
}

// Status reports the current state of one job. The polling surface hides
// receipts that belong to someone else behind NotFound. The in-process cache
// is consulted before the row; every transition writes the row first, so the
// cache never lags it.
func (s *Service) Status(ctx context.Context, userID, receiptID uuid.UUID) (ProcessingStatus, error) {
	rec, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return ProcessingStatus{}, err
	}
	if rec.UserID != userID {
		return ProcessingStatus{}, common.NotFoundError("receipt")
	}
	if st, ok := s.processor.tracker.get(receiptID); ok {
		return st, nil
	}
	return statusFromRow(rec), nil
}

// statusFromRow derives a ProcessingStatus for jobs that predate this
// process, where no cache entry exists. A processed row with a zero progress
// column reports 1.0.
func statusFromRow(rec *entity.Receipt) ProcessingStatus {
	st := ProcessingStatus{ReceiptID: rec.ID, Status: rec.Status, Progress: rec.Progress}
	if st.Status == "" {
		st.Status = "unknown"
	}
	if st.Progress == 0 && rec.Processed {
		st.Progress = 1.0
	}
	if rec.ErrorMessage != nil && *rec.ErrorMessage != "" {
		st.Message = *rec.ErrorMessage
	} else {
		st.Message = "Processing " + st.Status
	}
	return st
}

// List returns the user's receipts, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*entity.Receipt, error) {
	return s.receipts.List(ctx, userID, offset, limit)
}

// Get returns one owned receipt together with its transactions.
func (s *Service) Get(ctx context.Context, userID, receiptID uuid.UUID) (*entity.Receipt, []*entity.Transaction, error) {
	rec, err := s.ownedReceipt(ctx, userID, receiptID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.txs.ListByReceipt(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	return rec, txs, nil
}

// Update applies a partial field set to an owned receipt.
func (s *Service) Update(ctx context.Context, userID, receiptID uuid.UUID, upd entity.ReceiptUpdate) (*entity.Receipt, error) {
	if _, err := s.ownedReceipt(ctx, userID, receiptID); err != nil {
		return nil, err
	}
	return s.receipts.Update(ctx, receiptID, userID, upd)
}

// Delete removes an owned receipt, its transactions, its stored file, and any
// cached status entry.
func (s *Service) Delete(ctx context.Context, userID, receiptID uuid.UUID) error {
	rec, err := s.ownedReceipt(ctx, userID, receiptID)
	if err != nil {
		return err
	}
	if err := s.receipts.Delete(ctx, receiptID, userID); err != nil {
		return err
	}
	if rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove stored file", "path", rec.FilePath, "error", err)
		}
	}
	s.processor.tracker.drop(receiptID)
	s.logger.Info("receipt deleted", "receipt_id", receiptID, "user_id", userID)
	return nil
}

// UpdateTransaction applies a partial field set to a transaction the user
// owns through its receipt.
func (s *Service) UpdateTransaction(ctx context.Context, userID, txID uuid.UUID, upd entity.TransactionUpdate) (*entity.Transaction, error) {
	if _, _, err := s.ownedTransaction(ctx, userID, txID); err != nil {
		return nil, err
	}
	return s.txs.Update(ctx, txID, upd)
}

// AddToExpenses promotes a transaction into the expense ledger exactly once.
// The created expense carries the receipt's stored file as its attachment.
func (s *Service) AddToExpenses(ctx context.Context, userID, txID uuid.UUID) (*entity.Expense, *entity.Transaction, error) {
	tx, rec, err := s.ownedTransaction(ctx, userID, txID)
	if err != nil {
		return nil, nil, err
	}
	if tx.AddedToExpenses {
		return nil, nil, common.InvalidInputError("transaction already added to expenses")
	}

	exp, err := s.expenses.Create(ctx, &repository.CreateExpenseRequest{
		UserID:             userID,
		Amount:             tx.Amount,
		Description:        tx.Description,
		Date:               tx.Date,
		Category:           tx.Category,
		AttachmentFilename: &rec.Filename,
		AttachmentPath:     &rec.FilePath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create expense: %w", err)
	}

	added := true
	updated, err := s.txs.Update(ctx, txID, entity.TransactionUpdate{
		AddedToExpenses: &added,
		ExpenseID:       &exp.ID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("link transaction to expense: %w", err)
	}
	s.logger.Info("transaction added to expenses",
		"transaction_id", txID, "expense_id", exp.ID, "user_id", userID)
	return exp, updated, nil
}

// ownedReceipt loads a receipt and enforces ownership. A receipt that exists
// but belongs to someone else is Forbidden, not NotFound.
func (s *Service) ownedReceipt(ctx context.Context, userID, receiptID uuid.UUID) (*entity.Receipt, error) {
	rec, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, common.ForbiddenError("receipt belongs to a different user")
	}
	return rec, nil
}

// ownedTransaction resolves a transaction and its receipt, enforcing
// ownership through the receipt.
func (s *Service) ownedTransaction(ctx context.Context, userID, txID uuid.UUID) (*entity.Transaction, *entity.Receipt, error) {
	tx, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.receipts.GetByID(ctx, tx.ReceiptID)
	if err != nil {
		return nil, nil, err
	}
	if rec.UserID != userID {
		return nil, nil, common.ForbiddenError("transaction belongs to a different user")
	}
	return tx, rec, nil
}
