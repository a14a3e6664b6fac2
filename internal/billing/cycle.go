// Package billing decides whether a credit card invoice is open or already
// closed on a given day, and when the next good purchase date is.
package billing

import (
	"errors"
	"fmt"
	"time"

	"carteira/internal/core"
)

// Status is the externally visible state of a card's current invoice.
type Status string

const (
	StatusOpen          Status = "open"
	StatusClosedCurrent Status = "closed-current"
	// StatusOverdue means the invoice payment itself is late. Resolve never
	// returns it: it needs the due day and payment state, which the cycle
	// calculation does not see.
	StatusOverdue Status = "overdue"
)

// ErrInvalidClosingDay is returned for closing days outside 1..31.
var ErrInvalidClosingDay = errors.New("closing day must be between 1 and 31")

// Cycle is the derived billing-cycle view of a card for one evaluation day.
// It is computed fresh on every call and never stored.
type Cycle struct {
	Status              Status
	BestPurchaseDate    time.Time
	IsGoodDayToBuy      bool
	CurrentInvoiceMonth time.Time // first day of the invoice month
	ClosingDay          int       // effective closing day after clamping
}

// Resolve computes the billing cycle for evaluationDate and a monthly
// closing day. Only the calendar day of evaluationDate matters; the time of
// day is dropped in evaluationDate's own location. A closing day past the
// end of a short month is clamped to the month's last day, both for the
// closing date and for the open/closed comparison. The comparison uses the
// clamped day, so Feb 28 2023 with closing day 31 is already closed-current.
func Resolve(evaluationDate time.Time, closingDay int) (Cycle, error) {
	if closingDay < 1 || closingDay > 31 {
		return Cycle{}, fmt.Errorf("resolve billing cycle (closing day %d): %w", closingDay, ErrInvalidClosingDay)
	}

	today := core.StartOfDay(evaluationDate)
	year, month, day := today.Date()
	loc := today.Location()

	effective := core.ClampDay(year, month, closingDay)
	closingDate := time.Date(year, month, effective, 0, 0, 0, 0, loc)
	invoiceMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)

	if day >= effective {
		return Cycle{
			Status:              StatusClosedCurrent,
			BestPurchaseDate:    closingDate,
			IsGoodDayToBuy:      true,
			CurrentInvoiceMonth: invoiceMonth.AddDate(0, 1, 0),
			ClosingDay:          effective,
		}, nil
	}

	return Cycle{
		Status:              StatusOpen,
		BestPurchaseDate:    closingDate,
		IsGoodDayToBuy:      false,
		CurrentInvoiceMonth: invoiceMonth,
		ClosingDay:          effective,
	}, nil
}

// InvoiceMonthFor returns the first day of the invoice month a purchase made
// on purchaseDate is billed to.
func InvoiceMonthFor(purchaseDate time.Time, closingDay int) (time.Time, error) {
	c, err := Resolve(purchaseDate, closingDay)
	if err != nil {
		return time.Time{}, err
	}
	return c.CurrentInvoiceMonth, nil
}
