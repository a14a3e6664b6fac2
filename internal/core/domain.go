package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	RepetitionTypes string

	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is one persisted ledger row. Rows belonging to an
	// installment series share InstallmentGroupID.
	Transaction struct {
		ID                 string
		UserID             string
		Description        string
		Amount             Money
		Type               TransactionType
		Category           string
		Date               Date // billing date
		CardID             string
		InstallmentGroupID string
		InstallmentNumber  int
		TotalInstallments  int  // 0 when not part of a series
		PurchaseDate       Date // zero when equal to the billing date
	}

	Card struct {
		ID          string
		UserID      string
		Name        string
		ClosingDay  int
		DueDay      int
		CreditLimit Money
	}

	RecurringBill struct {
		ID            int64
		UserID        string
		StartDate     Date
		EndDate       Date
		Every         RepetitionTypes
		Description   string
		Amount        Money
		Category      string
		CardID        string
		LastExecution time.Time
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyUser        = errors.New("empty user id")
	ErrEmptyCardName    = errors.New("empty card name")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day and location from t.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsInstallment reports whether the row belongs to an installment series.
func (t Transaction) IsInstallment() bool {
	return t.InstallmentGroupID != "" || t.TotalInstallments > 1
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.PurchaseDate.IsEmpty() {
		if err := t.PurchaseDate.Validate(); err != nil {
			return errors.New("invalid purchase date: " + err.Error())
		}
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCardName
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return errors.New("closing day must be between 1 and 31")
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return errors.New("due day must be between 1 and 31")
	}
	if c.CreditLimit.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (rb RecurringBill) Validate() error {
	if strings.TrimSpace(rb.UserID) == "" {
		return ErrEmptyUser
	}
	if err := rb.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}

	if !rb.EndDate.IsZero() {
		if err := rb.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if rb.EndDate.Before(rb.StartDate.Time) {
			return errors.New("end date must be after start date")
		}
	}

	switch rb.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return errors.New("invalid repetition type")
	}

	if len(strings.TrimSpace(rb.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(rb.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := rb.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(rb.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// ActiveOn reports whether the bill should run on the given day.
func (rb RecurringBill) ActiveOn(day Date) bool {
	if day.Before(rb.StartDate.Time) {
		return false
	}
	if !rb.EndDate.IsZero() && day.After(rb.EndDate.Time) {
		return false
	}
	return true
}
