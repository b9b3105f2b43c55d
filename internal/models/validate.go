package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amount bounds accepted from the expense forms.
var (
	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(500000)
)

const (
	maxTitleLength    = 200
	maxCategoryLength = 50
	minPasswordLength = 6
)

var (
	ErrEmptyTitle       = errors.New("title is required")
	ErrTitleTooLong     = errors.New("title is too long (max 200 characters)")
	ErrCategoryTooLong  = errors.New("category is too long (max 50 characters)")
	ErrInvalidAmount    = errors.New("amount must be a number")
	ErrAmountOutOfRange = errors.New("amount must be between 1 and 500000")
	ErrInvalidDate      = errors.New("date must be in YYYY-MM-DD format")
	ErrMissingOwner     = errors.New("expense has no owner")
	ErrInvalidUsername  = errors.New("username must be 3-32 characters: letters, digits, '.', '_' or '-'")
	ErrShortPassword    = errors.New("password must be at least 6 characters")
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
	// Plain positional notation only; exponents would let the input size the
	// rescale work done by Round and Cmp.
	amountPattern = regexp.MustCompile(`^[+-]?\d{1,12}([.,]\d{1,12})?$`)
)

// ParseAmount converts user input such as "12.34" or "12,34" into a decimal
// rounded to cents. Scientific notation is not accepted. Values outside
// [MinAmount, MaxAmount] are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if d.LessThan(MinAmount) || d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountOutOfRange
	}
	return d, nil
}

// ParseDate validates a YYYY-MM-DD date. A blank value means today.
func ParseDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Format(DateLayout), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}

// Normalize trims free-text fields and applies the default category.
func (e *Expense) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	e.Amount = e.Amount.Round(2)
}

// Validate checks a normalized expense before it is written.
func (e *Expense) Validate() error {
	if e.OwnerID == uuid.Nil {
		return ErrMissingOwner
	}
	if e.Title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(e.Title) > maxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(e.Category) > maxCategoryLength {
		return ErrCategoryTooLong
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// ValidateCredentials checks a registration request.
func ValidateCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return ErrShortPassword
	}
	return nil
}

// IsValidationError reports whether err is one of the validation sentinels
// above, i.e. a problem with user input rather than a server fault.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrEmptyTitle, ErrTitleTooLong, ErrCategoryTooLong, ErrInvalidAmount,
		ErrAmountOutOfRange, ErrInvalidDate, ErrInvalidUsername, ErrShortPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
