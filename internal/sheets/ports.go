package sheets

import (
	"context"
	"time"

	"carteira/internal/core"
)

// ExportRow is one ledger row as written to a spreadsheet.
type ExportRow struct {
	Transaction core.Transaction
	CardName    string
	// InvoiceMonth is the first day of the card invoice the row is billed
	// to, zero for rows without a card.
	InvoiceMonth time.Time
}

// Ports for outbound adapters.
type (
	// TransactionExporter appends rows to an external, append-only sheet.
	TransactionExporter interface {
		Export(ctx context.Context, rows []ExportRow) error
	}
)
