package installment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
)

// Mode is how a submitted purchase is persisted.
type Mode int

const (
	ModeSingle Mode = iota
	ModeSeries
)

func (m Mode) String() string {
	if m == ModeSeries {
		return "series"
	}
	return "single"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MinSeriesCount is the smallest installment count that produces a series.
const MinSeriesCount = 2

// DecideMode returns ModeSeries only for expenses with the installment
// toggle on and at least two installments.
func DecideMode(isInstallment bool, txType core.TransactionType, count int) Mode {
	if !isInstallment || txType == core.Income || count < MinSeriesCount {
		return ModeSingle
	}
	return ModeSeries
}

// Input is the raw form data a request is built from.
type Input struct {
	UserID               string
	Description          string
	Amount               decimal.Decimal
	Type                 core.TransactionType
	Category             string
	CardID               string
	PurchaseDate         time.Time
	FirstInstallmentDate time.Time
	IsInstallment        bool
	Count                int
}

// Request is the payload handed to the backend. In single mode
// PurchaseDate and TotalInstallments are nil and Date is the billing date.
// In series mode Amount is the purchase total; the backend expands it into
// TotalInstallments rows.
type Request struct {
	Mode              Mode
	UserID            string
	Description       string
	Amount            decimal.Decimal
	Type              core.TransactionType
	Category          string
	CardID            string
	Date              time.Time
	PurchaseDate      *time.Time
	TotalInstallments *int
}

// BuildRequest decides the mode for in and shapes the payload.
func BuildRequest(in Input) (Request, error) {
	if !in.Amount.IsPositive() {
		return Request{}, ErrNonPositiveAmount
	}
	if in.FirstInstallmentDate.IsZero() {
		return Request{}, ErrMissingDate
	}

	req := Request{
		Mode:        DecideMode(in.IsInstallment, in.Type, in.Count),
		UserID:      in.UserID,
		Description: in.Description,
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		CardID:      in.CardID,
		Date:        in.FirstInstallmentDate,
	}
	if req.Mode == ModeSingle {
		return req, nil
	}

	plan, err := NewPlan(in.PurchaseDate, in.FirstInstallmentDate, in.Amount, in.Count)
	if err != nil {
		return Request{}, err
	}
	if !plan.PerInstallmentAmount().Round(2).IsPositive() {
		return Request{}, fmt.Errorf("build request (total %s over %d): %w", in.Amount, in.Count, ErrInstallmentTooSmall)
	}
	purchase := plan.PurchaseDate
	count := plan.Count
	req.PurchaseDate = &purchase
	req.TotalInstallments = &count
	return req, nil
}

// Plan returns the schedule behind a series request.
func (r Request) Plan() (Plan, error) {
	count := 1
	if r.TotalInstallments != nil {
		count = *r.TotalInstallments
	}
	var purchase time.Time
	if r.PurchaseDate != nil {
		purchase = *r.PurchaseDate
	}
	return NewPlan(purchase, r.Date, r.Amount, count)
}
