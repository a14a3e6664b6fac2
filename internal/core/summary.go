package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// CardStatement is the expense total billed to a card in a month.
type CardStatement struct {
	CardID string
	Name   string
	Total  Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year         int
	Month        int // 1-12
	Income       Money
	Expenses     Money
	Balance      Money
	ByCategory   []CategoryAmount
	ByCard       []CardStatement
	Transactions int
}

// Summarize aggregates already-fetched transactions for one month.
// Rows outside year/month are ignored. Categories are sorted by amount,
// largest first, ties by name.
func Summarize(year, month int, txs []Transaction, cards []Card) MonthOverview {
	ov := MonthOverview{Year: year, Month: month}
	byCat := map[string]int64{}
	byCard := map[string]int64{}

	for _, tx := range txs {
		if tx.Date.Year() != year || tx.Date.Month() != month {
			continue
		}
		ov.Transactions++
		switch tx.Type {
		case Income:
			ov.Income.Cents += tx.Amount.Cents
		case Expense:
			ov.Expenses.Cents += tx.Amount.Cents
			byCat[tx.Category] += tx.Amount.Cents
			if tx.CardID != "" {
				byCard[tx.CardID] += tx.Amount.Cents
			}
		}
	}
	ov.Balance = Money{Cents: ov.Income.Cents - ov.Expenses.Cents}

	for name, cents := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})

	for _, c := range cards {
		ov.ByCard = append(ov.ByCard, CardStatement{CardID: c.ID, Name: c.Name, Total: Money{Cents: byCard[c.ID]}})
	}
	return ov
}
