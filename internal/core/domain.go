package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCategory is assigned to expenses created without a category.
const DefaultCategory = "General"

// DateLayout is the wire and storage format of Date values.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day without time of day, always in UTC.
	Date struct {
		time.Time
	}

	// Money is an amount expressed in cents.
	Money struct {
		Cents int64
	}

	// Expense is a persisted expense record. ID and CreatedAt are assigned by the store.
	Expense struct {
		ID          int64     `json:"id"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// ExpenseInput carries the caller-supplied fields of a new expense.
	// Category and Date are optional and get defaults in Normalize.
	ExpenseInput struct {
		Description string
		Amount      Money
		Category    string
		Date        Date
	}

	// ExpenseUpdate is a partial update: nil fields are left untouched.
	ExpenseUpdate struct {
		Description *string
		Amount      *Money
		Category    *string
		Date        *Date
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidDate      = errors.New("invalid date")
	ErrNotFound         = errors.New("expense not found")
)

// IsValidation reports whether err is a client-input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmptyDescription) ||
		errors.Is(err, ErrInvalidDate)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar day.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q must be YYYY-MM-DD", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD. Dates in this format sort correctly as text.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected a string", ErrInvalidDate)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Normalize trims the text fields and fills in the default category and date.
func (in ExpenseInput) Normalize() ExpenseInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	if in.Date.IsEmpty() {
		in.Date = Today()
	}
	return in
}

func (in ExpenseInput) Validate() error {
	if len(strings.TrimSpace(in.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// NewExpense builds a validated record from input. The store supplies id and creation time.
func NewExpense(id int64, in ExpenseInput, createdAt time.Time) (Expense, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Expense{}, err
	}
	e := Expense{
		ID:          id,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
		Date:        in.Date,
		CreatedAt:   createdAt.UTC(),
	}
	return e, e.Validate()
}

func (e Expense) Validate() error {
	if e.ID <= 0 {
		return fmt.Errorf("invalid id %d", e.ID)
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// IsEmpty reports whether the update carries no fields.
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Description == nil && u.Amount == nil && u.Category == nil && u.Date == nil
}

// Apply returns e with the supplied fields replaced. ID and CreatedAt never change.
func (u ExpenseUpdate) Apply(e Expense) (Expense, error) {
	if u.Description != nil {
		e.Description = strings.TrimSpace(*u.Description)
	}
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Category != nil {
		e.Category = strings.TrimSpace(*u.Category)
		if e.Category == "" {
			e.Category = DefaultCategory
		}
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	return e, nil
}
