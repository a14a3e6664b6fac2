package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
)

func TestExpandSeries(t *testing.T) {
	rows, err := ExpandSeries(SeriesParams{
		UserID:            "u1",
		Description:       "Notebook",
		Amount:            core.Money{Cents: 10000},
		Category:          "Tech",
		Date:              core.NewDate(2026, 1, 31),
		TotalInstallments: 3,
		CardID:            "c1",
		PurchaseDate:      core.NewDate(2026, 1, 20),
	}, "g1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	wantDates := []string{"2026-01-31", "2026-02-28", "2026-03-31"}
	for i, r := range rows {
		assert.Equal(t, wantDates[i], r.Date.String())
		assert.Equal(t, int64(3333), r.Amount.Cents)
		assert.Equal(t, i+1, r.InstallmentNumber)
		assert.Equal(t, 3, r.TotalInstallments)
		assert.Equal(t, "g1", r.InstallmentGroupID)
		assert.Equal(t, "2026-01-20", r.PurchaseDate.String())
		assert.Equal(t, core.Expense, r.Type)
	}

	drift := SeriesTotal(rows).Sub(decimal.NewFromInt(100)).Abs()
	assert.True(t, drift.LessThanOrEqual(decimal.RequireFromString("0.03")))
}

func TestExpandSeries_RoundsHalfUp(t *testing.T) {
	rows, err := ExpandSeries(SeriesParams{
		UserID: "u1", Description: "x", Category: "c",
		Amount:            core.Money{Cents: 1001},
		Date:              core.NewDate(2026, 5, 1),
		TotalInstallments: 2,
	}, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(501), rows[0].Amount.Cents)
	assert.Equal(t, "2026-05-01", rows[0].PurchaseDate.String())
}

func TestExpandSeries_Rejects(t *testing.T) {
	base := SeriesParams{UserID: "u1", Description: "x", Category: "c", Amount: core.Money{Cents: 100}, Date: core.NewDate(2026, 5, 1)}

	p := base
	p.TotalInstallments = 1
	_, err := ExpandSeries(p, "g")
	assert.ErrorIs(t, err, ErrTooFewInstallments)

	p = base
	p.TotalInstallments = 2
	p.Amount = core.Money{}
	_, err = ExpandSeries(p, "g")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	p = base
	p.TotalInstallments = 1000
	p.Amount = core.Money{Cents: 1}
	_, err = ExpandSeries(p, "g")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	p = base
	p.TotalInstallments = 2
	p.Description = " "
	_, err = ExpandSeries(p, "g")
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
}
