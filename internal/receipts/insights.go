package receipts

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

// MerchantInsights summarizes a user's spending history with one merchant.
type MerchantInsights struct {
	MerchantName  string          `json:"merchant_name"`
	ReceiptCount  int             `json:"receipt_count"`
	AverageSpend  decimal.Decimal `json:"average_spend"`
	TopCategories []string        `json:"top_categories"`
}

// InsightsFor aggregates the user's receipts for an exact merchant name:
// receipt count, average of the non-zero totals, and the top three categories
// by transaction count, ties broken by first appearance. A nil result means
// the user has no receipts for that merchant; that is not an error.
func (s *Service) InsightsFor(ctx context.Context, userID uuid.UUID, merchant string) (*MerchantInsights, error) {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return nil, common.InvalidInputError("merchant_name is required")
	}

	recs, err := s.receipts.ListByMerchant(ctx, userID, merchant)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	var totals []decimal.Decimal
	counts := make(map[string]int)
	order := []string{}
	for _, rec := range recs {
		if rec.ReceiptTotal != nil && !rec.ReceiptTotal.IsZero() {
			totals = append(totals, *rec.ReceiptTotal)
		}
		txs, err := s.txs.ListByReceipt(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if _, seen := counts[tx.Category]; !seen {
				order = append(order, tx.Category)
			}
			counts[tx.Category]++
		}
	}

	avg := decimal.Zero
	if len(totals) > 0 {
		sum := decimal.Zero
		for _, t := range totals {
			sum = sum.Add(t)
		}
		avg = sum.Div(decimal.NewFromInt(int64(len(totals)))).Round(2)
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	top := order
	if len(top) > 3 {
		top = top[:3]
	}

	s.logger.Debug("merchant insights computed",
		"user_id", userID, "merchant", merchant, "receipts", len(recs))
	return &MerchantInsights{
		MerchantName:  merchant,
		ReceiptCount:  len(recs),
		AverageSpend:  avg,
		TopCategories: top,
	}, nil
}
