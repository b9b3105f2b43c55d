package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCategory is stored when an expense is saved without a category.
const DefaultCategory = "Other"

// DateLayout is the storage and form layout of expense dates.
const DateLayout = "2006-01-02"

// Expense represents a single expense record owned by one user.
type Expense struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

// Month returns the first seven characters of the expense date (YYYY-MM), or
// the whole date when it is shorter than that.
func (e Expense) Month() string {
	r := []rune(e.Date)
	if len(r) < 7 {
		return e.Date
	}
	return string(r[:7])
}

// User represents a user account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token        string    `json:"token"`
	UserID       uuid.UUID `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}
