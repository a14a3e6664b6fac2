// Package installment derives installment schedules and decides whether a
// purchase is saved as one transaction or as an installment series.
package installment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

var (
	ErrTooFewInstallments = errors.New("installment count too low")
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrMissingDate        = errors.New("date is required")
	// ErrInstallmentTooSmall means each installment would round to zero cents.
	ErrInstallmentTooSmall = errors.New("installment amount rounds to zero")
)

// Plan is a purchase split into Count monthly installments. It is derived
// from user input and never persisted as such.
type Plan struct {
	PurchaseDate         time.Time
	FirstInstallmentDate time.Time
	Total                decimal.Decimal
	Count                int
}

// NewPlan validates its inputs and returns a plan. A zero purchase date
// defaults to the first installment date.
func NewPlan(purchaseDate, firstInstallmentDate time.Time, total decimal.Decimal, count int) (Plan, error) {
	if count < 1 {
		return Plan{}, fmt.Errorf("new plan (count %d): %w", count, ErrTooFewInstallments)
	}
	if !total.IsPositive() {
		return Plan{}, fmt.Errorf("new plan (total %s): %w", total, ErrNonPositiveAmount)
	}
	if firstInstallmentDate.IsZero() {
		return Plan{}, fmt.Errorf("new plan: first installment %w", ErrMissingDate)
	}
	if purchaseDate.IsZero() {
		purchaseDate = firstInstallmentDate
	}
	return Plan{
		PurchaseDate:         purchaseDate,
		FirstInstallmentDate: firstInstallmentDate,
		Total:                total,
		Count:                count,
	}, nil
}

// PerInstallmentAmount is Total divided by Count. The remainder is not
// redistributed, so Count times the result may drift from Total.
func (p Plan) PerInstallmentAmount() decimal.Decimal {
	return p.Total.Div(decimal.NewFromInt(int64(p.Count)))
}

// LastInstallmentDate is the billing date of the final installment.
func (p Plan) LastInstallmentDate() time.Time {
	return AddMonths(p.FirstInstallmentDate, p.Count-1)
}

// Schedule returns one billing date per installment, starting at the first
// installment date and advancing one calendar month at a time.
func (p Plan) Schedule() []time.Time {
	dates := make([]time.Time, p.Count)
	for i := range dates {
		dates[i] = AddMonths(p.FirstInstallmentDate, i)
	}
	return dates
}

// AddMonths moves t by n calendar months keeping the day of month, clamped
// to the last day of the target month (Jan 31 + 1 is Feb 28 or 29).
// The time of day and location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	day := core.ClampDay(first.Year(), first.Month(), d)
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
