package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction represents one extracted line item committed to the ledger.
type Transaction struct {
	ID                uuid.UUID                  `json:"id"`
	ReceiptID         uuid.UUID                  `json:"receipt_id"`
	Description       string                     `json:"description"`
	Amount            decimal.Decimal            `json:"amount"`
	Date              time.Time                  `json:"date"`
	Category          string                     `json:"category"`
	OriginalText      *string                    `json:"original_text,omitempty"`
	ConfidenceScore   float64                    `json:"confidence_score"`
	Verified          bool                       `json:"verified"`
	UserVerified      bool                       `json:"user_verified"`
	AddedToExpenses   bool                       `json:"added_to_expenses"`
	ExpenseID         *uuid.UUID                 `json:"expense_id,omitempty"`
	CorrectionHistory map[string]CorrectionEntry `json:"correction_history,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// CorrectionEntry is one feedback submission in a transaction's correction
// history, keyed in the history map by submission timestamp.
type CorrectionEntry struct {
	Previous    TransactionSnapshot   `json:"previous"`
	Corrections TransactionCorrection `json:"corrections"`
}

// TransactionSnapshot captures the pre-correction values of the mutable fields.
type TransactionSnapshot struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        *string         `json:"date"`
	Category    string          `json:"category"`
}

// TransactionCorrection is a user feedback submission. Every field is optional;
// OriginalDescription carries the uncorrected description used for hint learning.
type TransactionCorrection struct {
	Description         *string          `json:"correct_description,omitempty"`
	Amount              *decimal.Decimal `json:"correct_amount,omitempty"`
	Date                *string          `json:"correct_date,omitempty"`
	Category            *string          `json:"correct_category,omitempty"`
	OriginalDescription *string          `json:"description,omitempty"`
}

// TransactionUpdate enumerates the independently settable transaction fields.
// Nil means leave unchanged.
type TransactionUpdate struct {
	Description       *string
	Amount            *decimal.Decimal
	Date              *time.Time
	Category          *string
	Verified          *bool
	UserVerified      *bool
	AddedToExpenses   *bool
	ExpenseID         *uuid.UUID
	CorrectionHistory map[string]CorrectionEntry
}
