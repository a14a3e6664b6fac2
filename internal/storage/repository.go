package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the SQLite ledger.Backend.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	newID   func() string
}

var _ ledger.Backend = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// One writer at a time keeps series transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		newID:   uuid.NewString,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	tx, err := r.queries.GetTransaction(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) ListByMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, error) {
	from := core.NewDate(year, month, 1)
	to := core.DateOf(from.AddDate(0, 1, 0))
	txs, err := r.queries.ListTransactionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions %04d-%02d: %w", year, month, err)
	}
	return txs, nil
}

func (r *SQLiteRepository) ListByGroup(ctx context.Context, userID, groupID string) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByGroup(ctx, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list installment group %s: %w", groupID, err)
	}
	return txs, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx.ID = r.newID()
	if err := r.queries.CreateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents,
		"date", tx.Date.String())

	return tx, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

// CreateInstallmentSeries inserts every installment row inside one SQL
// transaction; either all rows are stored or none.
func (r *SQLiteRepository) CreateInstallmentSeries(ctx context.Context, p ledger.SeriesParams) (string, error) {
	groupID := r.newID()
	rows, err := ledger.ExpandSeries(p, groupID)
	if err != nil {
		return "", err
	}

	err = r.withTx(ctx, func(q *Queries) error {
		for _, row := range rows {
			row.ID = r.newID()
			if err := q.CreateTransaction(ctx, row); err != nil {
				return fmt.Errorf("insert installment %d/%d: %w", row.InstallmentNumber, row.TotalInstallments, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create installment series: %w", err)
	}

	slog.InfoContext(ctx, "Installment series saved to SQLite",
		log.FieldGroupID, groupID,
		log.FieldInstallments, len(rows),
		"total_cents", p.Amount.Cents,
		"stored_total", ledger.SeriesTotal(rows).StringFixed(2))

	return groupID, nil
}

func (r *SQLiteRepository) ListCards(ctx context.Context, userID string) ([]core.Card, error) {
	cards, err := r.queries.ListCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

func (r *SQLiteRepository) GetCard(ctx context.Context, userID, id string) (core.Card, error) {
	c, err := r.queries.GetCard(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Card{}, fmt.Errorf("card %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

// SaveCard inserts c when it has no ID, otherwise updates it.
func (r *SQLiteRepository) SaveCard(ctx context.Context, c core.Card) (core.Card, error) {
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	if c.ID == "" {
		c.ID = r.newID()
		if err := r.queries.CreateCard(ctx, c); err != nil {
			return core.Card{}, fmt.Errorf("create card: %w", err)
		}
		return c, nil
	}
	n, err := r.queries.UpdateCard(ctx, c)
	if err != nil {
		return core.Card{}, fmt.Errorf("update card: %w", err)
	}
	if n == 0 {
		return core.Card{}, fmt.Errorf("card %s: %w", c.ID, ledger.ErrNotFound)
	}
	return c, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringBill, error) {
	items, err := r.queries.ListRecurring(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring bills: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) SaveRecurring(ctx context.Context, rb core.RecurringBill) (core.RecurringBill, error) {
	if err := rb.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	if rb.ID == 0 {
		id, err := r.queries.CreateRecurring(ctx, rb)
		if err != nil {
			return core.RecurringBill{}, fmt.Errorf("create recurring bill: %w", err)
		}
		rb.ID = id
		return rb, nil
	}
	n, err := r.queries.UpdateRecurring(ctx, rb)
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("update recurring bill: %w", err)
	}
	if n == 0 {
		return core.RecurringBill{}, fmt.Errorf("recurring bill %d: %w", rb.ID, ledger.ErrNotFound)
	}
	return rb, nil
}

func (r *SQLiteRepository) MarkExecuted(ctx context.Context, id int64, at time.Time) error {
	n, err := r.queries.MarkRecurringExecuted(ctx, id, at)
	if err != nil {
		return fmt.Errorf("mark recurring bill executed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring bill %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Categories(ctx context.Context) ([]string, error) {
	cats, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", log.FieldError, rbErr)
		}
		return err
	}
	return tx.Commit()
}
