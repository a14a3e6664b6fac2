package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"carteira/internal/core"
	ports "carteira/internal/sheets"
)

const defaultSheetName = "Lançamentos"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Lançamentos"); each row goes to "<year> <base>".
	sheetBase string
}

var _ ports.TransactionExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Lançamentos").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	base := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if base == "" {
		base = defaultSheetName
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// Export appends rows to the year sheet of each row's billing date.
func (c *Client) Export(ctx context.Context, rows []ports.ExportRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	for _, batch := range c.batches(rows) {
		rng := fmt.Sprintf("%s!A:I", batch.sheet)
		vr := &gsheet.ValueRange{Values: batch.values}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append %d rows to %s: %w", len(batch.values), batch.sheet, err)
		}
		slog.InfoContext(ctx, "Exported rows to Google Sheets", "sheet", batch.sheet, "rows", len(batch.values))
	}
	return nil
}

type sheetBatch struct {
	sheet  string
	values [][]any
}

// batches groups rows by target sheet, in year order, keeping row order
// inside each sheet.
func (c *Client) batches(rows []ports.ExportRow) []sheetBatch {
	byYear := map[int]*sheetBatch{}
	var years []int
	for _, r := range rows {
		y := r.Transaction.Date.Year()
		b, ok := byYear[y]
		if !ok {
			b = &sheetBatch{sheet: yearPrefixedName(c.sheetBase, y)}
			byYear[y] = b
			years = append(years, y)
		}
		b.values = append(b.values, rowValues(r))
	}
	sort.Ints(years)
	out := make([]sheetBatch, 0, len(years))
	for _, y := range years {
		out = append(out, *byYear[y])
	}
	return out
}

// rowValues renders a row as: date, purchase date, description, amount,
// type, category, card, installment n/N, invoice month (YYYY-MM). The amount is a plain decimal so
// the sheet can sum it; expenses are negative.
func rowValues(r ports.ExportRow) []any {
	tx := r.Transaction
	amount := tx.Amount.Decimal()
	if tx.Type == core.Expense {
		amount = amount.Neg()
	}
	installment := ""
	if tx.TotalInstallments > 1 {
		installment = fmt.Sprintf("%d/%d", tx.InstallmentNumber, tx.TotalInstallments)
	}
	invoiceMonth := ""
	if !r.InvoiceMonth.IsZero() {
		invoiceMonth = r.InvoiceMonth.Format("2006-01")
	}
	return []any{
		tx.Date.String(),
		tx.PurchaseDate.String(),
		tx.Description,
		amount.StringFixed(2),
		string(tx.Type),
		tx.Category,
		r.CardName,
		installment,
		invoiceMonth,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
