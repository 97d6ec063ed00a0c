package entity

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account owner for data transfer between layers.
// Authentication itself lives in the fronting proxy; rows here exist to scope
// ownership of receipts, expenses and incomes.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PictureURL *string   `json:"picture,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
