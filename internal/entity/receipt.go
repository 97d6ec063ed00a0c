package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt represents one uploaded receipt document and its extraction job state.
// The row is the durable source of truth for job status; in-memory status caches
// are populated from it.
type Receipt struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	Filename          string           `json:"filename"`
	FilePath          string           `json:"file_path"`
	FileExt           string           `json:"file_ext"`
	ContentHash       []byte           `json:"-"`
	Status            string           `json:"status"`
	Progress          float64          `json:"progress"`
	ErrorMessage      *string          `json:"error_message,omitempty"`
	ProcessingSeconds *float64         `json:"processing_time,omitempty"`
	Feedback          map[string]any   `json:"feedback,omitempty"`
	MerchantName      *string          `json:"merchant_name,omitempty"`
	ReceiptDate       *time.Time       `json:"receipt_date,omitempty"`
	ReceiptTotal      *decimal.Decimal `json:"receipt_total,omitempty"`
	Processed         bool             `json:"processed"`
	Verified          bool             `json:"verified"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ReceiptUpdate enumerates the independently settable receipt fields.
// Nil means leave unchanged.
type ReceiptUpdate struct {
	MerchantName *string
	ReceiptDate  *time.Time
	ReceiptTotal *decimal.Decimal
	Verified     *bool
	Processed    *bool
	Feedback     map[string]any
}

// StatusUpdate carries one job status transition. Progress and ErrorMessage are
// optional; nil leaves the stored value untouched.
type StatusUpdate struct {
	Status       string
	Progress     *float64
	ErrorMessage *string
}
