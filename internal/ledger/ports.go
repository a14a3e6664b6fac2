// Package ledger declares the ports the application uses to reach the
// backend that owns transactions, cards and recurring bills.
package ledger

import (
	"context"
	"errors"
	"time"

	"carteira/internal/core"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrTooFewInstallments = errors.New("installment series needs at least 2 installments")
)

// SeriesParams is the argument set of the atomic installment-series
// operation. Amount is the purchase total.
type SeriesParams struct {
	UserID            string
	Description       string
	Amount            core.Money
	Category          string
	Date              core.Date // billing date of the first installment
	TotalInstallments int
	CardID            string
	PurchaseDate      core.Date
}

// Ports for outbound adapters.
type (
	TransactionReader interface {
		Get(ctx context.Context, userID, id string) (core.Transaction, error)
		// ListByMonth returns the user's rows billed in year/month, ordered by
		// date then id.
		ListByMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, error)
		ListByGroup(ctx context.Context, userID, groupID string) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		// Insert stores tx and returns it with its assigned ID.
		Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		Update(ctx context.Context, tx core.Transaction) error
		Delete(ctx context.Context, userID, id string) error
	}

	// SeriesCreator expands a purchase into one row per installment as a
	// single unit of work and returns the group id shared by the rows.
	SeriesCreator interface {
		CreateInstallmentSeries(ctx context.Context, p SeriesParams) (groupID string, err error)
	}

	CardStore interface {
		ListCards(ctx context.Context, userID string) ([]core.Card, error)
		GetCard(ctx context.Context, userID, id string) (core.Card, error)
		SaveCard(ctx context.Context, c core.Card) (core.Card, error)
	}

	RecurringStore interface {
		// ListRecurring returns the user's bills, or every bill when userID
		// is empty.
		ListRecurring(ctx context.Context, userID string) ([]core.RecurringBill, error)
		SaveRecurring(ctx context.Context, rb core.RecurringBill) (core.RecurringBill, error)
		MarkExecuted(ctx context.Context, id int64, at time.Time) error
	}

	CategoryReader interface {
		Categories(ctx context.Context) ([]string, error)
	}

	// Backend is everything the application needs from storage.
	Backend interface {
		TransactionReader
		TransactionWriter
		SeriesCreator
		CardStore
		RecurringStore
		CategoryReader
	}
)
