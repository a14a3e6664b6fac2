package services

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
	"carteira/internal/installment"
)

// ErrInvalidForm marks input rejected before any backend call.
var ErrInvalidForm = errors.New("invalid form")

// FormState is the state of one transaction form, new or edit.
//
// The first installment date follows the purchase date until it is set
// explicitly; from then on the two are independent.
type FormState struct {
	EditingID     string
	UserID        string
	Description   string
	Amount        decimal.Decimal
	Type          core.TransactionType
	Category      string
	CardID        string
	IsInstallment bool
	Installments  int

	purchaseDate         time.Time
	firstInstallmentDate time.Time
	firstTouched         bool

	original core.Transaction
	busy     atomic.Bool
}

// NewForm returns an empty expense form dated today.
func NewForm(userID string, today time.Time) *FormState {
	day := core.StartOfDay(today)
	return &FormState{
		UserID:               userID,
		Type:                 core.Expense,
		Installments:         1,
		purchaseDate:         day,
		firstInstallmentDate: day,
	}
}

// LoadForEdit fills a form from a stored row. For installment rows the
// purchase date and the row's own billing date stay separate.
func LoadForEdit(tx core.Transaction) *FormState {
	f := &FormState{
		EditingID:     tx.ID,
		UserID:        tx.UserID,
		Description:   tx.Description,
		Amount:        tx.Amount.Decimal(),
		Type:          tx.Type,
		Category:      tx.Category,
		CardID:        tx.CardID,
		IsInstallment: tx.IsInstallment(),
		Installments:  max(tx.TotalInstallments, 1),
		original:      tx,
	}
	f.firstInstallmentDate = tx.Date.Time
	f.purchaseDate = tx.Date.Time
	if !tx.PurchaseDate.IsEmpty() {
		f.purchaseDate = tx.PurchaseDate.Time
	}
	f.firstTouched = !f.purchaseDate.Equal(f.firstInstallmentDate)
	return f
}

func (f *FormState) SetPurchaseDate(t time.Time) {
	f.purchaseDate = t
	if !f.firstTouched {
		f.firstInstallmentDate = t
	}
}

func (f *FormState) SetFirstInstallmentDate(t time.Time) {
	f.firstInstallmentDate = t
	f.firstTouched = true
}

func (f *FormState) PurchaseDate() time.Time         { return f.purchaseDate }
func (f *FormState) FirstInstallmentDate() time.Time { return f.firstInstallmentDate }

// Editing reports whether the form edits a stored row.
func (f *FormState) Editing() bool { return f.EditingID != "" }

// Busy reports whether a submission of this form is running.
func (f *FormState) Busy() bool { return f.busy.Load() }

// Original is the row the form was loaded from, zero for new forms.
func (f *FormState) Original() core.Transaction { return f.original }

// Mode is the persistence mode the current input selects.
func (f *FormState) Mode() installment.Mode {
	return installment.DecideMode(f.IsInstallment, f.Type, f.Installments)
}

func (f *FormState) validate() error {
	var problems []string
	if strings.TrimSpace(f.UserID) == "" {
		problems = append(problems, "user is required")
	}
	if strings.TrimSpace(f.Description) == "" {
		problems = append(problems, "description is required")
	}
	if !f.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	}
	if !f.Type.Valid() {
		problems = append(problems, "type must be income or expense")
	}
	if strings.TrimSpace(f.Category) == "" {
		problems = append(problems, "category is required")
	}
	if f.firstInstallmentDate.IsZero() {
		problems = append(problems, "date is required")
	}
	if f.IsInstallment && f.Type == core.Expense && f.Installments < 1 {
		problems = append(problems, "installments must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(problems, "; "))
	}
	return nil
}

func (f *FormState) input() installment.Input {
	return installment.Input{
		UserID:               f.UserID,
		Description:          strings.TrimSpace(f.Description),
		Amount:               f.Amount,
		Type:                 f.Type,
		Category:             strings.TrimSpace(f.Category),
		CardID:               f.CardID,
		PurchaseDate:         f.purchaseDate,
		FirstInstallmentDate: f.firstInstallmentDate,
		IsInstallment:        f.IsInstallment,
		Count:                f.Installments,
	}
}
