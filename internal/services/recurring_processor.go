package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/log"
)

// RecurringStore is what the processor needs from the backend.
type RecurringStore interface {
	ledger.RecurringStore
	Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
}

// RecurringProcessor books the expenses of recurring bills when they come
// due.
type RecurringProcessor struct {
	store   RecurringStore
	events  EventPublisher
	dueness DuenessRegistry
}

func NewRecurringProcessor(store RecurringStore, events EventPublisher) *RecurringProcessor {
	return &RecurringProcessor{store: store, events: events, dueness: DefaultDueness()}
}

// ProcessDue creates one expense for every active bill due at now and
// returns how many were created. A failing bill is logged and skipped.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	bills, err := p.store.ListRecurring(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list recurring bills: %w", err)
	}

	today := core.DateOf(now)
	slog.InfoContext(ctx, "Processing recurring bills",
		"total", len(bills),
		"processing_date", today.String())

	processed := 0
	for _, rb := range bills {
		if !rb.ActiveOn(today) {
			continue
		}
		checker, err := p.dueness.Checker(rb.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping recurring bill", "recurring_id", rb.ID, log.FieldError, err)
			continue
		}
		if !checker.IsDue(rb.LastExecution, now, rb.StartDate) {
			continue
		}

		tx, err := p.store.Insert(ctx, core.Transaction{
			UserID:      rb.UserID,
			Description: rb.Description,
			Amount:      rb.Amount,
			Type:        core.Expense,
			Category:    rb.Category,
			Date:        today,
			CardID:      rb.CardID,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create expense from recurring bill",
				"recurring_id", rb.ID,
				"description", rb.Description,
				log.FieldError, err)
			continue
		}

		if err := p.store.MarkExecuted(ctx, rb.ID, now); err != nil {
			// The expense exists; the bill may run again on the next pass.
			slog.ErrorContext(ctx, "Failed to record last execution",
				"recurring_id", rb.ID,
				log.FieldError, err)
		}

		if p.events != nil {
			ev := amqp.NewTransactionEvent(amqp.TransactionCreated, tx.UserID, tx.ID)
			if err := p.events.PublishTransactionEvent(ctx, ev); err != nil {
				slog.WarnContext(ctx, "Failed to publish recurring expense", log.FieldTransactionID, tx.ID, log.FieldError, err)
			}
		}

		processed++
		slog.InfoContext(ctx, "Created expense from recurring bill",
			"recurring_id", rb.ID,
			log.FieldTransactionID, tx.ID,
			"amount_cents", rb.Amount.Cents,
			"frequency", rb.Every)
	}

	slog.InfoContext(ctx, "Recurring bill processing complete",
		"processed", processed,
		"total_checked", len(bills))
	return processed, nil
}
