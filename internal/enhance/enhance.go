// Package enhance post-processes a parsed receipt draft: it backfills missing
// transaction dates from the receipt date, suggests categories from the
// learned hint table, and reconciles the stated total against the line items.
// Enhance is a pure function so the same draft always yields the same result.
package enhance

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
)

// onePercent is the reconciliation tolerance relative to the receipt total.
var onePercent = decimal.New(1, -2)

// Warning reports a total that does not reconcile with the transaction sum.
// The discrepancy is surfaced, never corrected; an automatic fix could mask an
// extraction error.
type Warning struct {
	ReceiptTotal   decimal.Decimal
	TransactionSum decimal.Decimal
}

func (w Warning) String() string {
	return fmt.Sprintf("receipt total (%s) does not match transaction sum (%s)",
		w.ReceiptTotal.StringFixed(2), w.TransactionSum.StringFixed(2))
}

// Enhance applies the post-parse fixups to a draft and returns the result
// along with any reconciliation warnings. The input draft is not mutated.
func Enhance(draft entity.ReceiptDraft, table []hints.CategoryHints) (entity.ReceiptDraft, []Warning) {
	out := draft
	out.Transactions = slices.Clone(draft.Transactions)

	// Dates: a transaction without one inherits the receipt date. Some models
	// emit the literal string "null"; treat it as missing.
	if out.ReceiptDate != nil && *out.ReceiptDate != "" {
		for i := range out.Transactions {
			tx := &out.Transactions[i]
			if tx.Date == nil || *tx.Date == "" || *tx.Date == "null" {
				d := *out.ReceiptDate
				tx.Date = &d
			}
		}
	}

	// Categories: only the unset or still-default ones get a suggestion; a
	// category the model committed to is left alone.
	merchant := ""
	if out.MerchantName != nil {
		merchant = *out.MerchantName
	}
	for i := range out.Transactions {
		tx := &out.Transactions[i]
		if tx.Category != "" && tx.Category != constants.DefaultCategory {
			continue
		}
		if cat, ok := hints.SuggestFrom(table, tx.Description, merchant); ok {
			tx.Category = cat
		}
	}

	// Totals: absent means the transaction sum is authoritative. Present means
	// compare within 1% of the total and warn past that, strictly greater, so
	// a difference of exactly 1% stays quiet.
	sum := decimal.Zero
	for _, tx := range out.Transactions {
		sum = sum.Add(tx.Amount)
	}

	var warnings []Warning
	if out.ReceiptTotal == nil {
		out.ReceiptTotal = &sum
	} else {
		tolerance := out.ReceiptTotal.Mul(onePercent)
		if sum.Sub(*out.ReceiptTotal).Abs().GreaterThan(tolerance) {
			warnings = append(warnings, Warning{
				ReceiptTotal:   *out.ReceiptTotal,
				TransactionSum: sum,
			})
		}
	}

	return out, warnings
}
