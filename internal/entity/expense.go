package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Expense represents a ledger expense for data transfer between layers.
type Expense struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
	Date               time.Time       `json:"date"`
	Category           string          `json:"category"`
	PropertyType       *string         `json:"property_type,omitempty"`
	TaxDeductible      bool            `json:"tax_deductible"`
	AttachmentFilename *string         `json:"attachment_filename,omitempty"`
	AttachmentPath     *string         `json:"attachment_path,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}
