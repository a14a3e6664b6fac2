package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"carteira/internal/amqp"
	"carteira/internal/billing"
	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/log"
	"carteira/internal/sheets"
)

// Source is the read side of the ledger the worker needs.
type Source interface {
	ledger.TransactionReader
	GetCard(ctx context.Context, userID, id string) (core.Card, error)
}

// ExportWorker copies ledger writes announced on the event queue into an
// append-only spreadsheet.
type ExportWorker struct {
	source   Source
	exporter sheets.TransactionExporter
}

func NewExportWorker(source Source, exporter sheets.TransactionExporter) *ExportWorker {
	return &ExportWorker{source: source, exporter: exporter}
}

// HandleEvent processes a single transaction event. Returning an error
// requeues the event.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		log.FieldOperation, log.OpExport,
		"kind", ev.Kind,
		log.FieldTransactionID, ev.TransactionID,
		log.FieldGroupID, ev.GroupID)

	var (
		rows []core.Transaction
		err  error
	)
	switch ev.Kind {
	case amqp.TransactionCreated, amqp.TransactionUpdated:
		var tx core.Transaction
		tx, err = w.source.Get(ctx, ev.UserID, ev.TransactionID)
		rows = []core.Transaction{tx}
	case amqp.SeriesCreated:
		rows, err = w.source.ListByGroup(ctx, ev.UserID, ev.GroupID)
	case amqp.TransactionDeleted:
		// The sheet is append-only; deletions stay in the ledger.
		slog.InfoContext(ctx, "Skipping export of deleted transaction", log.FieldTransactionID, ev.TransactionID)
		return nil
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}

	if errors.Is(err, ledger.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction gone before export", log.FieldTransactionID, ev.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s rows: %w", ev.Kind, err)
	}
	if len(rows) == 0 {
		slog.WarnContext(ctx, "Installment group has no rows", log.FieldGroupID, ev.GroupID)
		return nil
	}

	export := w.exportRows(ctx, ev.UserID, rows)
	if err := w.exporter.Export(ctx, export); err != nil {
		return fmt.Errorf("export to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Exported transaction event", "kind", ev.Kind, "rows", len(export))
	return nil
}

// exportRows attaches card names and invoice months. A missing card leaves
// both blank.
func (w *ExportWorker) exportRows(ctx context.Context, userID string, rows []core.Transaction) []sheets.ExportRow {
	cards := map[string]core.Card{}
	out := make([]sheets.ExportRow, 0, len(rows))
	for _, tx := range rows {
		row := sheets.ExportRow{Transaction: tx}
		if tx.CardID != "" {
			card, ok := cards[tx.CardID]
			if !ok {
				var err error
				card, err = w.source.GetCard(ctx, userID, tx.CardID)
				if err != nil {
					slog.WarnContext(ctx, "Card lookup failed during export", log.FieldCardID, tx.CardID, log.FieldError, err)
				}
				cards[tx.CardID] = card
			}
			row.CardName = card.Name
			if card.ID != "" {
				if month, err := billing.InvoiceMonthFor(tx.Date.Time, card.ClosingDay); err == nil {
					row.InvoiceMonth = month
				}
			}
		}
		out = append(out, row)
	}
	return out
}
