package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carteira/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const transactionColumns = `id, user_id, description, amount_cents, type, category, date,
	card_id, installment_group_id, installment_number, total_installments, purchase_date`

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		tx.ID,
		tx.UserID,
		tx.Description,
		tx.Amount.Cents,
		string(tx.Type),
		tx.Category,
		tx.Date.String(),
		nullString(tx.CardID),
		nullString(tx.InstallmentGroupID),
		tx.InstallmentNumber,
		nullInt(tx.TotalInstallments),
		nullString(tx.PurchaseDate.String()),
	)
	return err
}

const updateTransaction = `UPDATE transactions
SET description = ?, amount_cents = ?, type = ?, category = ?, date = ?, card_id = ?,
	installment_group_id = ?, installment_number = ?, total_installments = ?, purchase_date = ?,
	updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		tx.Description,
		tx.Amount.Cents,
		string(tx.Type),
		tx.Category,
		tx.Date.String(),
		nullString(tx.CardID),
		nullString(tx.InstallmentGroupID),
		tx.InstallmentNumber,
		nullInt(tx.TotalInstallments),
		nullString(tx.PurchaseDate.String()),
		tx.ID,
		tx.UserID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, userID))
}

const listTransactionsBetween = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND date >= ? AND date < ?
ORDER BY date, installment_number, id`

// ListTransactionsBetween returns rows with from <= date < to.
func (q *Queries) ListTransactionsBetween(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsBetween, userID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const listTransactionsByGroup = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND installment_group_id = ?
ORDER BY date, installment_number, id`

func (q *Queries) ListTransactionsByGroup(ctx context.Context, userID, groupID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByGroup, userID, groupID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const cardColumns = `id, user_id, name, closing_day, due_day, credit_limit_cents`

const createCard = `INSERT INTO cards (` + cardColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCard(ctx context.Context, c core.Card) error {
	_, err := q.db.ExecContext(ctx, createCard, c.ID, c.UserID, c.Name, c.ClosingDay, c.DueDay, c.CreditLimit.Cents)
	return err
}

const updateCard = `UPDATE cards SET name = ?, closing_day = ?, due_day = ?, credit_limit_cents = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateCard(ctx context.Context, c core.Card) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCard, c.Name, c.ClosingDay, c.DueDay, c.CreditLimit.Cents, c.ID, c.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getCard = `SELECT ` + cardColumns + ` FROM cards WHERE id = ? AND user_id = ?`

func (q *Queries) GetCard(ctx context.Context, userID, id string) (core.Card, error) {
	var c core.Card
	err := q.db.QueryRowContext(ctx, getCard, id, userID).Scan(
		&c.ID, &c.UserID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreditLimit.Cents)
	return c, err
}

const listCards = `SELECT ` + cardColumns + ` FROM cards WHERE user_id = ? ORDER BY name, id`

func (q *Queries) ListCards(ctx context.Context, userID string) ([]core.Card, error) {
	rows, err := q.db.QueryContext(ctx, listCards, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Card
	for rows.Next() {
		var c core.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreditLimit.Cents); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const recurringColumns = `id, user_id, description, amount_cents, category, card_id,
	start_date, end_date, every, last_execution`

const createRecurring = `INSERT INTO recurring_bills
	(user_id, description, amount_cents, category, card_id, start_date, end_date, every, last_execution)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateRecurring(ctx context.Context, rb core.RecurringBill) (int64, error) {
	res, err := q.db.ExecContext(ctx, createRecurring,
		rb.UserID, rb.Description, rb.Amount.Cents, rb.Category, nullString(rb.CardID),
		rb.StartDate.String(), nullString(rb.EndDate.String()), string(rb.Every), nullTime(rb.LastExecution))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateRecurring = `UPDATE recurring_bills
SET description = ?, amount_cents = ?, category = ?, card_id = ?, start_date = ?, end_date = ?, every = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateRecurring(ctx context.Context, rb core.RecurringBill) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRecurring,
		rb.Description, rb.Amount.Cents, rb.Category, nullString(rb.CardID),
		rb.StartDate.String(), nullString(rb.EndDate.String()), string(rb.Every), rb.ID, rb.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listRecurring = `SELECT ` + recurringColumns + ` FROM recurring_bills
WHERE (? = '' OR user_id = ?) ORDER BY id`

func (q *Queries) ListRecurring(ctx context.Context, userID string) ([]core.RecurringBill, error) {
	rows, err := q.db.QueryContext(ctx, listRecurring, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.RecurringBill
	for rows.Next() {
		var (
			rb                    core.RecurringBill
			cardID, end, lastExec sql.NullString
			start, every          string
		)
		if err := rows.Scan(&rb.ID, &rb.UserID, &rb.Description, &rb.Amount.Cents, &rb.Category,
			&cardID, &start, &end, &every, &lastExec); err != nil {
			return nil, err
		}
		rb.CardID = cardID.String
		rb.Every = core.RepetitionTypes(every)
		if rb.StartDate, err = core.ParseDate(start); err != nil {
			return nil, fmt.Errorf("recurring bill %d start date: %w", rb.ID, err)
		}
		if end.Valid {
			if rb.EndDate, err = core.ParseDate(end.String); err != nil {
				return nil, fmt.Errorf("recurring bill %d end date: %w", rb.ID, err)
			}
		}
		if lastExec.Valid {
			if rb.LastExecution, err = time.Parse(time.RFC3339Nano, lastExec.String); err != nil {
				return nil, fmt.Errorf("recurring bill %d last execution: %w", rb.ID, err)
			}
		}
		items = append(items, rb)
	}
	return items, rows.Err()
}

const markRecurringExecuted = `UPDATE recurring_bills SET last_execution = ? WHERE id = ?`

func (q *Queries) MarkRecurringExecuted(ctx context.Context, id int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, markRecurringExecuted, nullTime(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `SELECT name FROM categories ORDER BY position, name`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		tx                            core.Transaction
		typ, date                     string
		cardID, groupID, purchaseDate sql.NullString
		total                         sql.NullInt64
	)
	if err := r.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Amount.Cents, &typ, &tx.Category, &date,
		&cardID, &groupID, &tx.InstallmentNumber, &total, &purchaseDate); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.CardID = cardID.String
	tx.InstallmentGroupID = groupID.String
	tx.TotalInstallments = int(total.Int64)

	var err error
	if tx.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date: %w", tx.ID, err)
	}
	if purchaseDate.Valid {
		if tx.PurchaseDate, err = core.ParseDate(purchaseDate.String); err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %s purchase date: %w", tx.ID, err)
		}
	}
	return tx, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var items []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	return items, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
