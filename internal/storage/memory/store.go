// Package memory implements storage.Store as an in-process document store.
// Data lives only as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// Store keeps users, sessions and expenses in maps guarded by one lock.
// Values are copied in and out so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	byName   map[string]uuid.UUID
	sessions map[string]models.Session
	expenses map[uuid.UUID]models.Expense
	closed   bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]models.User),
		byName:   make(map[string]uuid.UUID),
		sessions: make(map[string]models.Session),
		expenses: make(map[uuid.UUID]models.Expense),
	}
}

// Ping fails once the store has been closed.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return ctx.Err()
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateUser adds a user, returning storage.ErrUserExists when the username is taken.
func (s *Store) CreateUser(_ context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return nil, storage.ErrUserExists
	}
	u := models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	return &u, nil
}

// GetUserByID returns the user with the given id or storage.ErrNotFound.
func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

// GetUserByUsername returns the user with the given username or storage.ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// UserCount returns the number of registered users.
func (s *Store) UserCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// CreateSession stores a session token for userID that expires at expiresAt.
func (s *Store) CreateSession(_ context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return storage.ErrNotFound
	}
	s.sessions[token] = models.Session{
		Token:        token,
		UserID:       userID,
		ExpiresAt:    expiresAt,
		LastActivity: time.Now(),
	}
	return nil
}

// ValidateSession returns the session owner, or storage.ErrNotFound when the token is unknown or expired.
func (s *Store) ValidateSession(_ context.Context, token string) (*storage.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, storage.ErrNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.SessionInfo{
		User:         &u,
		LastActivity: sess.LastActivity,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// RenewSession moves the expiry of an existing session and records activity.
func (s *Store) RenewSession(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	sess.ExpiresAt = expiresAt
	sess.LastActivity = time.Now()
	s.sessions[token] = sess
	return nil
}

// DeleteSession removes a session. Unknown tokens are not an error.
func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// CleanExpiredSessions deletes expired sessions and returns how many were removed.
func (s *Store) CleanExpiredSessions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var n int64
	for token, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// CreateExpense inserts e, assigning its ID and CreatedAt.
func (s *Store) CreateExpense(_ context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	s.expenses[e.ID] = *e
	return nil
}

// GetExpense returns the owner's expense, or storage.ErrNotFound if it is absent or foreign.
func (s *Store) GetExpense(_ context.Context, ownerID, id uuid.UUID) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

// UpdateExpense overwrites the editable fields of an expense owned by e.OwnerID.
func (s *Store) UpdateExpense(_ context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.expenses[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return storage.ErrNotFound
	}
	cur.Title = e.Title
	cur.Category = e.Category
	cur.Amount = e.Amount
	cur.Date = e.Date
	s.expenses[e.ID] = cur
	return nil
}

// DeleteExpense removes an expense owned by ownerID.
func (s *Store) DeleteExpense(_ context.Context, ownerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// ListExpenses returns the owner's expenses, newest date first.
func (s *Store) ListExpenses(_ context.Context, ownerID uuid.UUID) ([]models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Expense
	for _, e := range s.expenses {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
