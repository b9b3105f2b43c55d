// Package storetest holds a conformance suite that every storage.Store
// backend runs in its own tests.
package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// StoreSuite exercises the storage.Store contract. Backends embed it and set
// Open, which must return a fresh, empty store.
type StoreSuite struct {
	suite.Suite
	Open func() (storage.Store, error)

	ctx   context.Context
	store storage.Store
	owner *models.User
	other *models.User
}

// SetupTest runs before each test
func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := s.Open()
	s.Require().NoError(err, "failed to open store")
	s.store = store

	hash, err := auth.HashPassword("testpass")
	s.Require().NoError(err)

	s.owner, err = s.store.CreateUser(s.ctx, "testuser", hash)
	s.Require().NoError(err, "failed to create test user")
	s.other, err = s.store.CreateUser(s.ctx, "otheruser", hash)
	s.Require().NoError(err, "failed to create second user")
}

// TearDownTest runs after each test
func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) newExpense(owner *models.User, title, category, amount, date string) *models.Expense {
	e := &models.Expense{
		OwnerID:  owner.ID,
		Title:    title,
		Category: category,
		Amount:   decimal.RequireFromString(amount),
		Date:     date,
	}
	s.Require().NoError(s.store.CreateExpense(s.ctx, e), "failed to create expense: %s", title)
	return e
}

func (s *StoreSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}

func (s *StoreSuite) TestCreateUserDuplicate() {
	_, err := s.store.CreateUser(s.ctx, "testuser", "hash")
	s.ErrorIs(err, storage.ErrUserExists)

	// Usernames are case-sensitive as stored.
	_, err = s.store.CreateUser(s.ctx, "TestUser", "hash")
	s.NoError(err)
}

func (s *StoreSuite) TestGetUser() {
	byName, err := s.store.GetUserByUsername(s.ctx, "testuser")
	s.Require().NoError(err)
	s.Equal(s.owner.ID, byName.ID)
	s.True(auth.CheckPassword("testpass", byName.PasswordHash))

	byID, err := s.store.GetUserByID(s.ctx, s.owner.ID)
	s.Require().NoError(err)
	s.Equal("testuser", byID.Username)

	_, err = s.store.GetUserByUsername(s.ctx, "nobody")
	s.ErrorIs(err, storage.ErrNotFound)

	_, err = s.store.GetUserByID(s.ctx, uuid.New())
	s.ErrorIs(err, storage.ErrNotFound)

	count, err := s.store.UserCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *StoreSuite) TestCreateExpenseAssignsID() {
	e := s.newExpense(s.owner, "Lunch", "Food", "10.50", "2024-01-15")
	s.NotEqual(uuid.Nil, e.ID)
	s.False(e.CreatedAt.IsZero())

	got, err := s.store.GetExpense(s.ctx, s.owner.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Lunch", got.Title)
	s.Equal("Food", got.Category)
	s.Equal("2024-01-15", got.Date)
	s.Equal(s.owner.ID, got.OwnerID)
	s.True(decimal.RequireFromString("10.5").Equal(got.Amount), "amount %s", got.Amount)
}

func (s *StoreSuite) TestListExpensesScopedAndOrdered() {
	s.newExpense(s.owner, "Bus", "Transport", "20", "2024-01-10")
	s.newExpense(s.owner, "Coffee", "Food", "5", "2024-03-01")
	s.newExpense(s.owner, "Snack", "Food", "15", "2024-02-20")
	s.newExpense(s.other, "Someone else", "Food", "99", "2024-04-01")

	result, err := s.store.ListExpenses(s.ctx, s.owner.ID)
	s.Require().NoError(err)
	s.Require().Len(result, 3, "expected only the owner's expenses")

	s.Equal("Coffee", result[0].Title)
	s.Equal("Snack", result[1].Title)
	s.Equal("Bus", result[2].Title)
	for _, e := range result {
		s.Equal(s.owner.ID, e.OwnerID)
	}

	empty, err := s.store.ListExpenses(s.ctx, uuid.New())
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *StoreSuite) TestUpdateExpense() {
	e := s.newExpense(s.owner, "Lunch", "Food", "10", "2024-01-15")

	e.Title = "Dinner"
	e.Category = "Restaurants"
	e.Amount = decimal.RequireFromString("42.42")
	e.Date = "2024-01-16"
	s.Require().NoError(s.store.UpdateExpense(s.ctx, e))

	got, err := s.store.GetExpense(s.ctx, s.owner.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Dinner", got.Title)
	s.Equal("Restaurants", got.Category)
	s.Equal("2024-01-16", got.Date)
	s.True(decimal.RequireFromString("42.42").Equal(got.Amount))
}

func (s *StoreSuite) TestOtherOwnerCannotTouchExpense() {
	e := s.newExpense(s.owner, "Private", "Food", "10", "2024-01-15")

	_, err := s.store.GetExpense(s.ctx, s.other.ID, e.ID)
	s.ErrorIs(err, storage.ErrNotFound)

	hijack := *e
	hijack.OwnerID = s.other.ID
	hijack.Title = "Hijacked"
	s.ErrorIs(s.store.UpdateExpense(s.ctx, &hijack), storage.ErrNotFound)

	s.ErrorIs(s.store.DeleteExpense(s.ctx, s.other.ID, e.ID), storage.ErrNotFound)

	got, err := s.store.GetExpense(s.ctx, s.owner.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Private", got.Title)
}

func (s *StoreSuite) TestDeleteExpenseIsPermanent() {
	e := s.newExpense(s.owner, "Gone", "Food", "10", "2024-01-15")

	s.Require().NoError(s.store.DeleteExpense(s.ctx, s.owner.ID, e.ID))

	_, err := s.store.GetExpense(s.ctx, s.owner.ID, e.ID)
	s.ErrorIs(err, storage.ErrNotFound)
	s.ErrorIs(s.store.DeleteExpense(s.ctx, s.owner.ID, e.ID), storage.ErrNotFound)
	s.ErrorIs(s.store.UpdateExpense(s.ctx, e), storage.ErrNotFound)
}

func (s *StoreSuite) TestCreateAndValidateSession() {
	token, err := auth.GenerateSessionToken()
	s.Require().NoError(err)

	err = s.store.CreateSession(s.ctx, token, s.owner.ID, time.Now().Add(30*24*time.Hour))
	s.Require().NoError(err)

	info, err := s.store.ValidateSession(s.ctx, token)
	s.Require().NoError(err)
	s.Equal("testuser", info.User.Username)
	s.Less(time.Since(info.LastActivity), 5*time.Second, "LastActivity should be recent")

	_, err = s.store.ValidateSession(s.ctx, "unknown-token")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestExpiredSession() {
	err := s.store.CreateSession(s.ctx, "expired", s.owner.ID, time.Now().Add(-time.Minute))
	s.Require().NoError(err)
	err = s.store.CreateSession(s.ctx, "live", s.owner.ID, time.Now().Add(time.Hour))
	s.Require().NoError(err)

	_, err = s.store.ValidateSession(s.ctx, "expired")
	s.ErrorIs(err, storage.ErrNotFound)

	n, err := s.store.CleanExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	_, err = s.store.ValidateSession(s.ctx, "live")
	s.NoError(err)
}

func (s *StoreSuite) TestRenewSession() {
	token, err := auth.GenerateSessionToken()
	s.Require().NoError(err)

	err = s.store.CreateSession(s.ctx, token, s.owner.ID, time.Now().Add(30*24*time.Hour))
	s.Require().NoError(err)

	// Wait a moment to ensure timestamps differ
	time.Sleep(10 * time.Millisecond)

	original, err := s.store.ValidateSession(s.ctx, token)
	s.Require().NoError(err)

	err = s.store.RenewSession(s.ctx, token, time.Now().Add(60*24*time.Hour))
	s.Require().NoError(err)

	updated, err := s.store.ValidateSession(s.ctx, token)
	s.Require().NoError(err)

	s.True(updated.LastActivity.After(original.LastActivity),
		"LastActivity should be updated after renewal")
	s.True(updated.ExpiresAt.After(original.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (s *StoreSuite) TestDeleteSession() {
	token, err := auth.GenerateSessionToken()
	s.Require().NoError(err)

	err = s.store.CreateSession(s.ctx, token, s.owner.ID, time.Now().Add(time.Hour))
	s.Require().NoError(err)

	_, err = s.store.ValidateSession(s.ctx, token)
	s.Require().NoError(err, "session should exist before deletion")

	s.Require().NoError(s.store.DeleteSession(s.ctx, token))

	_, err = s.store.ValidateSession(s.ctx, token)
	s.ErrorIs(err, storage.ErrNotFound, "expected error after deleting session")
}
