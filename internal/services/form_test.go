package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"carteira/internal/core"
	"carteira/internal/installment"
)

func TestFormState_FirstInstallmentFollowsPurchaseUntilTouched(t *testing.T) {
	f := NewForm("u1", time.Date(2026, 2, 12, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, day(2026, 2, 12), f.PurchaseDate())
	assert.Equal(t, day(2026, 2, 12), f.FirstInstallmentDate())

	f.SetPurchaseDate(day(2026, 2, 14))
	assert.Equal(t, day(2026, 2, 14), f.FirstInstallmentDate())

	f.SetFirstInstallmentDate(day(2026, 3, 5))
	f.SetPurchaseDate(day(2026, 2, 10))
	assert.Equal(t, day(2026, 2, 10), f.PurchaseDate())
	assert.Equal(t, day(2026, 3, 5), f.FirstInstallmentDate(), "sync must stop once the first installment is set")
}

func TestFormState_SettingFirstInstallmentNeverMovesPurchase(t *testing.T) {
	f := NewForm("u1", day(2026, 2, 12))
	f.SetFirstInstallmentDate(day(2026, 3, 5))
	assert.Equal(t, day(2026, 2, 12), f.PurchaseDate())
}

func TestLoadForEdit_InstallmentRowKeepsDatesApart(t *testing.T) {
	tx := core.Transaction{
		ID: "t2", UserID: "u1", Description: "TV", Amount: core.Money{Cents: 5000},
		Type: core.Expense, Category: "Casa", Date: core.NewDate(2026, 4, 5),
		InstallmentGroupID: "g1", InstallmentNumber: 2, TotalInstallments: 2,
		PurchaseDate: core.NewDate(2026, 2, 12),
	}

	f := LoadForEdit(tx)
	assert.True(t, f.Editing())
	assert.Equal(t, day(2026, 2, 12), f.PurchaseDate())
	assert.Equal(t, day(2026, 4, 5), f.FirstInstallmentDate())
	assert.True(t, f.IsInstallment)
	assert.Equal(t, 2, f.Installments)
	assert.Equal(t, "50", f.Amount.String())

	f.SetPurchaseDate(day(2026, 2, 13))
	assert.Equal(t, day(2026, 4, 5), f.FirstInstallmentDate())
}

func TestLoadForEdit_SingleRowUsesDateForBoth(t *testing.T) {
	f := LoadForEdit(core.Transaction{
		ID: "t1", UserID: "u1", Description: "Padaria", Amount: core.Money{Cents: 1290},
		Type: core.Expense, Category: "Alimentação", Date: core.NewDate(2026, 1, 9),
	})
	assert.Equal(t, day(2026, 1, 9), f.PurchaseDate())
	assert.Equal(t, day(2026, 1, 9), f.FirstInstallmentDate())
	assert.False(t, f.IsInstallment)
	assert.Equal(t, 1, f.Installments)
	assert.Equal(t, installment.ModeSingle, f.Mode())

	f.SetPurchaseDate(day(2026, 1, 11))
	assert.Equal(t, day(2026, 1, 11), f.FirstInstallmentDate())
}
