package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/enhance"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
	"github.com/lahirugmg/business-cost-tracker/internal/ocr"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

// Progress checkpoints reported as a job moves through the pipeline.
const (
	progressQueued    = 0.1
	progressExtracted = 0.25
	progressParsed    = 0.6
	progressEnhanced  = 0.8
	progressDone      = 1.0
)

// TextExtractor turns a stored document into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, ext string) (ocr.ExtractionResult, error)
}

// DraftParser turns extracted text into a receipt draft. Implementations
// absorb provider failures and always return a well-formed draft.
type DraftParser interface {
	Parse(ctx context.Context, text string) entity.ReceiptDraft
}

// Processor runs the extraction pipeline for one receipt: stored file, OCR
// text, parsed draft, enhanced draft, ledger rows. It owns every status
// transition of the job, writing the row first and the in-process cache
// second so a poll that follows a successful write always observes it.
type Processor struct {
	receipts  repository.ReceiptRepository
	txs       repository.TransactionRepository
	extractor TextExtractor
	parser    DraftParser
	hints     *hints.Table
	tracker   *statusTracker
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(
	receipts repository.ReceiptRepository,
	txs repository.TransactionRepository,
	extractor TextExtractor,
	parser DraftParser,
	table *hints.Table,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		receipts:  receipts,
		txs:       txs,
		extractor: extractor,
		parser:    parser,
		hints:     table,
		tracker:   newStatusTracker(),
		logger:    logger,
		now:       time.Now,
	}
}

// Process is the queue entrypoint. Failures are recorded on the job row
// before they are returned, so the worker only has to log them.
func (p *Processor) Process(ctx context.Context, job async.Job) error {
	rec, err := p.receipts.GetByID(ctx, job.ReceiptID)
	if err != nil {
		p.logger.Error("processor.load.failed", "receipt_id", job.ReceiptID, "error", err)
		return fmt.Errorf("load receipt: %w", err)
	}
	if constants.JobStatus(rec.Status).IsTerminal() {
		p.logger.Warn("skipping receipt in terminal state", "receipt_id", rec.ID, "status", rec.Status)
		return nil
	}
	_, _, err = p.Run(ctx, rec)
	return err
}

// Run executes the pipeline inline against an already created receipt row and
// returns the refreshed row plus the persisted transactions. Transactions are
// committed before the terminal completed write, so no reader observes a
// completed job without its rows. On failure the row carries the captured
// error message and progress stays at its last reported value.
func (p *Processor) Run(ctx context.Context, rec *entity.Receipt) (*entity.Receipt, []*entity.Transaction, error) {
	start := p.now()
	if err := p.transition(ctx, rec, constants.JobStatusProcessing, f64(progressQueued), "Processing receipt"); err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	text, err := p.extractText(ctx, rec)
	if err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}
	if err := p.transition(ctx, rec, constants.JobStatusProcessing, f64(progressExtracted), "Text extracted, analyzing receipt"); err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	draft := p.parser.Parse(ctx, text)
	if err := p.transition(ctx, rec, constants.JobStatusProcessing, f64(progressParsed), "Receipt parsed, applying enhancements"); err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	enhanced, warnings := enhance.Enhance(draft, p.hints.Snapshot())
	for _, w := range warnings {
		p.logger.Warn("receipt totals do not reconcile", "receipt_id", rec.ID, "detail", w.String())
	}
	if err := p.transition(ctx, rec, constants.JobStatusProcessing, f64(progressEnhanced), "Saving extracted transactions"); err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	txs, err := p.persist(ctx, rec, enhanced)
	if err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	if err := p.transition(ctx, rec, constants.JobStatusCompleted, f64(progressDone), "Processing completed"); err != nil {
		return nil, nil, p.fail(ctx, rec, err)
	}

	fresh, err := p.receipts.GetByID(ctx, rec.ID)
	if err != nil {
		fresh = rec
	}
	p.logger.Info("receipt processed",
		"receipt_id", rec.ID,
		"transactions", len(txs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fresh, txs, nil
}

// extractText reads the stored file and runs text extraction over it.
func (p *Processor) extractText(ctx context.Context, rec *entity.Receipt) (string, error) {
	data, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}
	res, err := p.extractor.Extract(ctx, data, rec.FileExt)
	if err != nil {
		return "", common.ExtractionError("text extraction failed", err)
	}
	p.logger.Debug("text extracted",
		"receipt_id", rec.ID,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"confidence", res.Confidence,
	)
	return res.Text, nil
}

// persist writes the draft's receipt fields and commits one transaction row
// per line item. A line item without a usable date falls back to the receipt
// date, then to the current date.
func (p *Processor) persist(ctx context.Context, rec *entity.Receipt, draft entity.ReceiptDraft) ([]*entity.Transaction, error) {
	upd := entity.ReceiptUpdate{
		MerchantName: draft.MerchantName,
		ReceiptTotal: draft.ReceiptTotal,
	}
	receiptDate := parseDraftDate(draft.ReceiptDate)
	if receiptDate != nil {
		upd.ReceiptDate = receiptDate
	}
	if _, err := p.receipts.Update(ctx, rec.ID, rec.UserID, upd); err != nil {
		return nil, fmt.Errorf("save receipt fields: %w", err)
	}

	txs := make([]*entity.Transaction, 0, len(draft.Transactions))
	for _, item := range draft.Transactions {
		req := &repository.CreateTransactionRequest{
			ReceiptID:    rec.ID,
			Description:  item.Description,
			Amount:       item.Amount,
			Category:     item.Category,
			OriginalText: item.OriginalText,
			Confidence:   item.Confidence,
		}
		if d := parseDraftDate(item.Date); d != nil {
			req.Date = *d
		} else if receiptDate != nil {
			req.Date = *receiptDate
		}
		tx, err := p.txs.Create(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("save transaction %q: %w", item.Description, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// transition advances the job state machine. Terminal rows are frozen here;
// the repository write itself is last-write-wins.
func (p *Processor) transition(ctx context.Context, rec *entity.Receipt, status constants.JobStatus, progress *float64, message string) error {
	if constants.JobStatus(rec.Status).IsTerminal() {
		p.logger.Warn("refusing transition out of terminal state",
			"receipt_id", rec.ID, "from", rec.Status, "to", status)
		return common.InvalidInputErrorf("receipt %s is already %s", rec.ID, rec.Status)
	}
	if err := p.receipts.UpdateStatus(ctx, rec.ID, entity.StatusUpdate{Status: string(status), Progress: progress}); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	rec.Status = string(status)
	if progress != nil {
		rec.Progress = *progress
	}
	p.tracker.set(ProcessingStatus{
		ReceiptID: rec.ID,
		Status:    rec.Status,
		Progress:  rec.Progress,
		Message:   message,
	})
	return nil
}

// fail records a terminal failure with the captured message, leaving progress
// at its last reported value. A failure to write the row is logged rather
// than returned; the original cause is what propagates.
func (p *Processor) fail(ctx context.Context, rec *entity.Receipt, cause error) error {
	p.logger.Error("receipt processing failed", "receipt_id", rec.ID, "error", cause)
	msg := cause.Error()
	if err := p.receipts.UpdateStatus(ctx, rec.ID, entity.StatusUpdate{
		Status:       string(constants.JobStatusFailed),
		ErrorMessage: &msg,
	}); err != nil {
		p.logger.Error("failed to record processing failure", "receipt_id", rec.ID, "error", err)
	}
	rec.Status = string(constants.JobStatusFailed)
	rec.ErrorMessage = &msg
	p.tracker.set(ProcessingStatus{
		ReceiptID: rec.ID,
		Status:    rec.Status,
		Progress:  rec.Progress,
		Message:   msg,
	})
	return cause
}

func parseDraftDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &t
}

func f64(v float64) *float64 { return &v }
