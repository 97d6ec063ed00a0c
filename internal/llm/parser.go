package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
)

// maxAttempts is the total number of completion attempts per document, first
// try included.
const maxAttempts = 3

// Parser drives the completion provider with retries and turns its replies
// into receipt drafts. It never fails outright: once the attempts are spent
// it synthesizes a diagnostic draft so downstream stages always receive a
// well-formed result and the error stays visible to the user.
type Parser struct {
	client CompletionClient
	hints  *hints.Table
	logger *slog.Logger

	// seams for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewParser(client CompletionClient, table *hints.Table, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		client: client,
		hints:  table,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// attemptResult carries one attempt's outcome. raw is kept for logging even
// when the attempt failed mid-pipeline.
type attemptResult struct {
	draft entity.ReceiptDraft
	raw   []byte
	err   error
}

// Parse extracts a receipt draft from OCR text. Each attempt runs the reply
// through sanitize, schema validation, and decode; a structurally invalid
// reply counts as a failed attempt. Backoff between attempts doubles from 1s.
func (p *Parser) Parse(ctx context.Context, text string) entity.ReceiptDraft {
	start := time.Now()

	hintsJSON, err := p.hints.SerializeJSON()
	if err != nil {
		p.logger.Warn("llm.parse.hints_encode_failed", "error", err)
		hintsJSON = nil
	}

	schema := BuildReceiptJSONSchema()
	req := CompletionRequest{
		SystemPrompt: BuildSystemPrompt(),
		UserPrompt:   BuildUserPrompt(text, hintsJSON),
		Schema:       schema,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res := p.attempt(ctx, req, schema)
		if res.err == nil {
			p.logger.Info("llm.parse.ok",
				"attempt", attempt+1,
				"transactions", len(res.draft.Transactions),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return res.draft
		}

		lastErr = res.err
		if attempt == maxAttempts-1 {
			break
		}
		delay := time.Second << attempt
		p.logger.Warn("llm.parse.retry",
			"attempt", attempt+1,
			"backoff", delay.String(),
			"error", res.err,
		)
		if err := p.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	p.logger.Error("llm.parse.exhausted",
		"attempts", maxAttempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"error", lastErr,
	)
	return p.fallbackDraft(lastErr)
}

func (p *Parser) attempt(ctx context.Context, req CompletionRequest, schema map[string]any) attemptResult {
	raw, err := p.client.Complete(ctx, req)
	if err != nil {
		return attemptResult{raw: raw, err: common.CompletionError("completion request failed", err)}
	}

	clean, _, err := NormalizeAndSanitizeJSON(raw, p.logger)
	if err != nil {
		return attemptResult{raw: raw, err: common.CompletionError("response is not valid JSON", err)}
	}
	if err := ValidateAgainstSchema(schema, clean); err != nil {
		return attemptResult{raw: raw, err: common.CompletionError("response failed schema validation", err)}
	}

	var draft entity.ReceiptDraft
	if err := json.Unmarshal(clean, &draft); err != nil {
		return attemptResult{raw: raw, err: common.CompletionError("decoding receipt draft", err)}
	}
	normalizeDraft(&draft)
	return attemptResult{draft: draft, raw: raw}
}

// normalizeDraft applies the draft defaults after a successful decode. Dates
// are left unset here; the enhancement stage backfills them from the receipt
// date and persistence falls back to the current date.
func normalizeDraft(d *entity.ReceiptDraft) {
	if d.MerchantName != nil && strings.TrimSpace(*d.MerchantName) == "" {
		d.MerchantName = nil
	}
	if d.ReceiptDate != nil && strings.TrimSpace(*d.ReceiptDate) == "" {
		d.ReceiptDate = nil
	}
	for i := range d.Transactions {
		tx := &d.Transactions[i]
		tx.Description = strings.TrimSpace(tx.Description)
		if tx.Date != nil && strings.TrimSpace(*tx.Date) == "" {
			tx.Date = nil
		}
		if strings.TrimSpace(tx.Category) == "" {
			tx.Category = constants.DefaultCategory
		}
		if tx.Confidence <= 0 || tx.Confidence > 1 {
			tx.Confidence = 1.0
		}
	}
}

// fallbackDraft is returned when every attempt failed. The single diagnostic
// transaction keeps the failure visible for manual correction instead of
// silently losing the upload.
func (p *Parser) fallbackDraft(cause error) entity.ReceiptDraft {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > 50 {
		msg = msg[:50]
	}

	today := p.now().Format("2006-01-02")
	return entity.ReceiptDraft{
		ReceiptDate: &today,
		Transactions: []entity.TransactionDraft{{
			Description: "Receipt parsing failed: " + msg + "...",
			Amount:      decimal.Zero,
			Date:        &today,
			Category:    constants.DefaultCategory,
			Confidence:  1.0,
		}},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
