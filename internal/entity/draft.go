package entity

import "github.com/shopspring/decimal"

// ReceiptDraft is the structured output of one successful parse, not yet
// persisted as ledger entities. Dates travel as YYYY-MM-DD strings until
// persistence.
type ReceiptDraft struct {
	MerchantName *string            `json:"merchant_name"`
	ReceiptDate  *string            `json:"receipt_date"`
	ReceiptTotal *decimal.Decimal   `json:"receipt_total"`
	Transactions []TransactionDraft `json:"transactions"`
}

// TransactionDraft is one extracted line item before persistence.
type TransactionDraft struct {
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Date         *string         `json:"date,omitempty"`
	Category     string          `json:"category,omitempty"`
	OriginalText *string         `json:"original_text,omitempty"`
	Confidence   float64         `json:"confidence_score,omitempty"`
}
