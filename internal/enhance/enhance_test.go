package enhance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEnhanceBackfillsDates(t *testing.T) {
	draft := entity.ReceiptDraft{
		ReceiptDate: strPtr("2024-02-10"),
		Transactions: []entity.TransactionDraft{
			{Description: "Latte", Amount: amount("4.25")},
			{Description: "Bagel", Amount: amount("3.50"), Date: strPtr("null")},
			{Description: "Juice", Amount: amount("5.00"), Date: strPtr("2024-02-09")},
		},
	}

	out, _ := Enhance(draft, hints.Defaults())

	require.NotNil(t, out.Transactions[0].Date)
	assert.Equal(t, "2024-02-10", *out.Transactions[0].Date)
	require.NotNil(t, out.Transactions[1].Date)
	assert.Equal(t, "2024-02-10", *out.Transactions[1].Date)
	// an explicit date is never overwritten
	assert.Equal(t, "2024-02-09", *out.Transactions[2].Date)
}

func TestEnhanceLeavesDatesWithoutReceiptDate(t *testing.T) {
	draft := entity.ReceiptDraft{
		Transactions: []entity.TransactionDraft{
			{Description: "Latte", Amount: amount("4.25")},
		},
	}

	out, _ := Enhance(draft, hints.Defaults())
	assert.Nil(t, out.Transactions[0].Date)
}

func TestEnhanceSuggestsCategories(t *testing.T) {
	tests := []struct {
		name     string
		tx       entity.TransactionDraft
		merchant *string
		want     string
	}{
		{
			name: "description keyword",
			tx:   entity.TransactionDraft{Description: "Team lunch downtown", Category: "Miscellaneous"},
			want: "Food",
		},
		{
			name:     "merchant keyword",
			tx:       entity.TransactionDraft{Description: "Room 204, two nights", Category: ""},
			merchant: strPtr("Lakeside Hotel"),
			want:     "Accommodation",
		},
		{
			name: "existing category untouched",
			tx:   entity.TransactionDraft{Description: "Team lunch downtown", Category: "Entertainment"},
			want: "Entertainment",
		},
		{
			name: "no match keeps default",
			tx:   entity.TransactionDraft{Description: "Misc sundries", Category: "Miscellaneous"},
			want: "Miscellaneous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := entity.ReceiptDraft{
				MerchantName: tt.merchant,
				Transactions: []entity.TransactionDraft{tt.tx},
			}
			out, _ := Enhance(draft, hints.Defaults())
			assert.Equal(t, tt.want, out.Transactions[0].Category)
		})
	}
}

func TestEnhanceSetsAbsentTotalFromSum(t *testing.T) {
	draft := entity.ReceiptDraft{
		Transactions: []entity.TransactionDraft{
			{Description: "Latte", Amount: amount("4.25")},
			{Description: "Bagel", Amount: amount("3.50")},
		},
	}

	out, warnings := Enhance(draft, nil)

	require.NotNil(t, out.ReceiptTotal)
	assert.True(t, out.ReceiptTotal.Equal(amount("7.75")))
	assert.Empty(t, warnings)
}

func TestEnhanceReconciliationBoundary(t *testing.T) {
	tests := []struct {
		name     string
		sum      string
		wantWarn bool
	}{
		{name: "exact match", sum: "100.00", wantWarn: false},
		{name: "under tolerance", sum: "100.50", wantWarn: false},
		{name: "exactly one percent", sum: "101.00", wantWarn: false},
		{name: "just past one percent", sum: "101.01", wantWarn: true},
		{name: "short by more than one percent", sum: "98.00", wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := entity.ReceiptDraft{
				ReceiptTotal: decPtr("100.00"),
				Transactions: []entity.TransactionDraft{
					{Description: "Item", Amount: amount(tt.sum)},
				},
			}

			out, warnings := Enhance(draft, nil)

			// stated totals are never rewritten
			assert.True(t, out.ReceiptTotal.Equal(amount("100.00")))
			if tt.wantWarn {
				require.Len(t, warnings, 1)
				assert.True(t, warnings[0].TransactionSum.Equal(amount(tt.sum)))
				assert.Contains(t, warnings[0].String(), "100.00")
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestEnhanceIsPure(t *testing.T) {
	draft := entity.ReceiptDraft{
		MerchantName: strPtr("Corner Deli"),
		ReceiptDate:  strPtr("2024-02-10"),
		Transactions: []entity.TransactionDraft{
			{Description: "Bagel with lox", Amount: amount("9.00"), Category: "Miscellaneous"},
		},
	}

	first, warn1 := Enhance(draft, hints.Defaults())
	second, warn2 := Enhance(draft, hints.Defaults())

	assert.Equal(t, first, second)
	assert.Equal(t, warn1, warn2)

	// the input draft is untouched
	assert.Nil(t, draft.Transactions[0].Date)
	assert.Equal(t, "Miscellaneous", draft.Transactions[0].Category)
}
