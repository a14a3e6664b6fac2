package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"carteira/internal/core"
	"carteira/internal/installment"
)

// ExpandSeries turns p into one expense row per installment sharing
// groupID. Each row carries Amount/TotalInstallments rounded half-up to the
// cent; the remainder is not redistributed. Billing dates advance one
// calendar month per row, clamped to short months.
func ExpandSeries(p SeriesParams, groupID string) ([]core.Transaction, error) {
	if p.TotalInstallments < installment.MinSeriesCount {
		return nil, fmt.Errorf("expand series (count %d): %w", p.TotalInstallments, ErrTooFewInstallments)
	}
	if err := p.Amount.Validate(); err != nil {
		return nil, fmt.Errorf("expand series: %w", err)
	}

	plan, err := installment.NewPlan(p.PurchaseDate.Time, p.Date.Time, p.Amount.Decimal(), p.TotalInstallments)
	if err != nil {
		return nil, fmt.Errorf("expand series: %w", err)
	}
	per := core.MoneyFromDecimal(plan.PerInstallmentAmount())
	if per.Cents <= 0 {
		return nil, fmt.Errorf("expand series (total %s over %d): %w", p.Amount, p.TotalInstallments, core.ErrInvalidAmount)
	}

	purchase := core.DateOf(plan.PurchaseDate)
	rows := make([]core.Transaction, 0, plan.Count)
	for i, d := range plan.Schedule() {
		tx := core.Transaction{
			UserID:             p.UserID,
			Description:        p.Description,
			Amount:             per,
			Type:               core.Expense,
			Category:           p.Category,
			Date:               core.DateOf(d),
			CardID:             p.CardID,
			InstallmentGroupID: groupID,
			InstallmentNumber:  i + 1,
			TotalInstallments:  plan.Count,
			PurchaseDate:       purchase,
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("expand series row %d: %w", i+1, err)
		}
		rows = append(rows, tx)
	}
	return rows, nil
}

// SeriesTotal sums the row amounts of a series. It can differ from the
// requested total by up to half a cent per row.
func SeriesTotal(rows []core.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount.Decimal())
	}
	return sum
}
