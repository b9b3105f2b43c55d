// Package storage defines the record store used by the application.
// Backends live in the sqlite, postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"expense-ledger/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another owner.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrClosed is returned by Ping after Close.
	ErrClosed = errors.New("store closed")
)

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Users persists accounts.
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserCount(ctx context.Context) (int, error)
}

// Sessions persists login sessions.
type Sessions interface {
	CreateSession(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	ValidateSession(ctx context.Context, token string) (*SessionInfo, error)
	RenewSession(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// Expenses persists expense records. Every lookup and mutation is scoped to
// the owner; a record of another owner behaves as if it did not exist.
type Expenses interface {
	CreateExpense(ctx context.Context, e *models.Expense) error
	GetExpense(ctx context.Context, ownerID, id uuid.UUID) (*models.Expense, error)
	UpdateExpense(ctx context.Context, e *models.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id uuid.UUID) error
	ListExpenses(ctx context.Context, ownerID uuid.UUID) ([]models.Expense, error)
}

// Store is the full persistence surface. Its lifecycle is owned by the
// process entry point.
type Store interface {
	Users
	Sessions
	Expenses
	Ping(ctx context.Context) error
	Close() error
}
