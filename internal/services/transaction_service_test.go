package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/installment"
	"carteira/internal/ledger"
	"carteira/internal/ledger/memory"
)

// callLog wraps a store and records the order of write calls.
type callLog struct {
	TransactionStore
	mu        sync.Mutex
	calls     []string
	seriesErr error
	deleteErr error
	series    []ledger.SeriesParams
	block     chan struct{}
}

func (c *callLog) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	c.record("insert")
	if c.block != nil {
		<-c.block
	}
	return c.TransactionStore.Insert(ctx, tx)
}

func (c *callLog) Update(ctx context.Context, tx core.Transaction) error {
	c.record("update")
	return c.TransactionStore.Update(ctx, tx)
}

func (c *callLog) Delete(ctx context.Context, userID, id string) error {
	c.record("delete")
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.TransactionStore.Delete(ctx, userID, id)
}

func (c *callLog) CreateInstallmentSeries(ctx context.Context, p ledger.SeriesParams) (string, error) {
	c.record("series")
	c.series = append(c.series, p)
	if c.seriesErr != nil {
		return "", c.seriesErr
	}
	return c.TransactionStore.CreateInstallmentSeries(ctx, p)
}

type recordingPublisher struct {
	events []amqp.TransactionEvent
	err    error
}

func (r *recordingPublisher) PublishTransactionEvent(_ context.Context, ev amqp.TransactionEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func newService(t *testing.T) (*TransactionService, *callLog, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.New(nil)
	log := &callLog{TransactionStore: store}
	pub := &recordingPublisher{}
	return NewTransactionService(log, pub), log, store, pub
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expenseForm(amount string) *FormState {
	f := NewForm("u1", day(2026, 2, 12))
	f.Description = "TV"
	f.Amount = decimal.RequireFromString(amount)
	f.Category = "Casa"
	return f
}

func TestSubmit_NewSingleInsertsOnce(t *testing.T) {
	ctx := context.Background()
	svc, log, store, pub := newService(t)

	f := expenseForm("100.00")
	f.IsInstallment = true
	f.Installments = 1

	res, err := svc.Submit(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, installment.ModeSingle, res.Mode)
	assert.Equal(t, []string{"insert"}, log.calls)

	got, err := store.Get(ctx, "u1", res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.Amount.Cents)
	assert.Equal(t, "2026-02-12", got.Date.String())
	assert.True(t, got.PurchaseDate.IsEmpty())
	assert.Zero(t, got.TotalInstallments)

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.TransactionCreated, pub.events[0].Kind)
}

func TestSubmit_NewSeriesCallsBackendOnce(t *testing.T) {
	ctx := context.Background()
	svc, log, store, pub := newService(t)

	f := expenseForm("100.00")
	f.IsInstallment = true
	f.Installments = 2
	f.SetFirstInstallmentDate(day(2026, 3, 5))

	res, err := svc.Submit(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, installment.ModeSeries, res.Mode)
	assert.Equal(t, []string{"series"}, log.calls)

	require.Len(t, log.series, 1)
	p := log.series[0]
	assert.Equal(t, int64(10000), p.Amount.Cents)
	assert.Equal(t, 2, p.TotalInstallments)
	assert.Equal(t, "2026-02-12", p.PurchaseDate.String())
	assert.Equal(t, "2026-03-05", p.Date.String())

	rows, err := store.ListByGroup(ctx, "u1", res.GroupID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-04-05", rows[1].Date.String())
	assert.Equal(t, int64(5000), rows[1].Amount.Cents)

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.SeriesCreated, pub.events[0].Kind)
	assert.Equal(t, res.GroupID, pub.events[0].GroupID)
}

func TestSubmit_IncomeIgnoresInstallmentToggle(t *testing.T) {
	svc, log, _, _ := newService(t)

	f := expenseForm("3500")
	f.Type = core.Income
	f.Category = "Salário"
	f.IsInstallment = true
	f.Installments = 6

	res, err := svc.Submit(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, installment.ModeSingle, res.Mode)
	assert.Equal(t, []string{"insert"}, log.calls)
}

func TestSubmit_EditConvertedToSeriesDeletesThenCreates(t *testing.T) {
	ctx := context.Background()
	svc, log, store, pub := newService(t)

	orig, err := store.Insert(ctx, core.Transaction{
		UserID: "u1", Description: "Notebook", Amount: core.Money{Cents: 360000},
		Type: core.Expense, Category: "Eletrônicos", Date: core.NewDate(2026, 1, 20),
	})
	require.NoError(t, err)

	f, err := svc.LoadForm(ctx, "u1", orig.ID)
	require.NoError(t, err)
	f.IsInstallment = true
	f.Installments = 3

	res, err := svc.Submit(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", "series"}, log.calls)
	assert.Equal(t, orig.ID, res.Replaced)

	_, err = store.Get(ctx, "u1", orig.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	rows, err := store.ListByGroup(ctx, "u1", res.GroupID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(120000), rows[0].Amount.Cents)
	assert.Equal(t, "2026-01-20", rows[0].Date.String())
	assert.Equal(t, "2026-03-20", rows[2].Date.String())

	require.Len(t, pub.events, 2)
	assert.Equal(t, amqp.TransactionDeleted, pub.events[0].Kind)
	assert.Equal(t, amqp.SeriesCreated, pub.events[1].Kind)
}

func TestSubmit_ConversionFailureLeavesOriginalDeleted(t *testing.T) {
	ctx := context.Background()
	svc, log, store, _ := newService(t)
	log.seriesErr = errors.New("permission denied for function create_installment_series")

	orig, err := store.Insert(ctx, core.Transaction{
		UserID: "u1", Description: "Geladeira", Amount: core.Money{Cents: 500000},
		Type: core.Expense, Category: "Casa", Date: core.NewDate(2026, 5, 2),
	})
	require.NoError(t, err)

	f := LoadForEdit(orig)
	f.IsInstallment = true
	f.Installments = 10

	res, err := svc.Submit(ctx, f)
	require.Error(t, err)
	assert.Equal(t, "permission denied for function create_installment_series", err.Error())
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "create installment series", be.Op)
	assert.Equal(t, orig.ID, res.Replaced)
	assert.Equal(t, []string{"delete", "series"}, log.calls)

	_, err = store.Get(ctx, "u1", orig.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSubmit_ConversionStopsWhenDeleteFails(t *testing.T) {
	ctx := context.Background()
	svc, log, store, _ := newService(t)
	log.deleteErr = errors.New("row is locked")

	orig, err := store.Insert(ctx, core.Transaction{
		UserID: "u1", Description: "Cadeira", Amount: core.Money{Cents: 90000},
		Type: core.Expense, Category: "Casa", Date: core.NewDate(2026, 5, 2),
	})
	require.NoError(t, err)

	f := LoadForEdit(orig)
	f.IsInstallment = true
	f.Installments = 3

	_, err = svc.Submit(ctx, f)
	require.EqualError(t, err, "row is locked")
	assert.Equal(t, []string{"delete"}, log.calls)
}

func TestSubmit_EditSingleUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	svc, log, store, pub := newService(t)

	orig, err := store.Insert(ctx, core.Transaction{
		UserID: "u1", Description: "Mercado", Amount: core.Money{Cents: 25000},
		Type: core.Expense, Category: "Alimentação", Date: core.NewDate(2026, 4, 3),
	})
	require.NoError(t, err)

	f := LoadForEdit(orig)
	f.Amount = decimal.RequireFromString("275.90")
	f.SetPurchaseDate(day(2026, 4, 4))

	res, err := svc.Submit(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"update"}, log.calls)
	assert.Equal(t, orig.ID, res.Transaction.ID)

	got, err := store.Get(ctx, "u1", orig.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(27590), got.Amount.Cents)
	assert.Equal(t, "2026-04-04", got.Date.String())
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.TransactionUpdated, pub.events[0].Kind)
}

func TestSubmit_EditInstallmentRowKeepsSeries(t *testing.T) {
	ctx := context.Background()
	svc, log, store, _ := newService(t)

	groupID, err := store.CreateInstallmentSeries(ctx, ledger.SeriesParams{
		UserID: "u1", Description: "Sofá", Amount: core.Money{Cents: 300000}, Category: "Casa",
		Date: core.NewDate(2026, 3, 10), TotalInstallments: 3, PurchaseDate: core.NewDate(2026, 2, 20),
	})
	require.NoError(t, err)
	rows, err := store.ListByGroup(ctx, "u1", groupID)
	require.NoError(t, err)

	f := LoadForEdit(rows[1])
	f.Description = "Sofá retrátil"

	_, err = svc.Submit(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"update"}, log.calls)

	got, err := store.Get(ctx, "u1", rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Sofá retrátil", got.Description)
	assert.Equal(t, groupID, got.InstallmentGroupID)
	assert.Equal(t, 2, got.InstallmentNumber)
	assert.Equal(t, "2026-02-20", got.PurchaseDate.String())
	assert.Equal(t, "2026-04-10", got.Date.String())
}

func TestSubmit_ValidationFailsBeforeBackend(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *FormState)
	}{
		{"zero amount", func(f *FormState) { f.Amount = decimal.Zero }},
		{"negative amount", func(f *FormState) { f.Amount = decimal.NewFromInt(-5) }},
		{"sub-cent amount", func(f *FormState) { f.Amount = decimal.RequireFromString("0.004") }},
		{"blank description", func(f *FormState) { f.Description = "  " }},
		{"blank category", func(f *FormState) { f.Category = "" }},
		{"bad type", func(f *FormState) { f.Type = "transfer" }},
		{"no date", func(f *FormState) { f.SetFirstInstallmentDate(time.Time{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, log, _, _ := newService(t)
			f := expenseForm("10")
			tt.mutate(f)
			_, err := svc.Submit(context.Background(), f)
			assert.ErrorIs(t, err, ErrInvalidForm)
			assert.Empty(t, log.calls)
		})
	}
}

func TestSubmit_RejectsOverlappingSubmission(t *testing.T) {
	svc, log, _, _ := newService(t)
	log.block = make(chan struct{})

	f := expenseForm("42")
	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), f)
		done <- err
	}()

	require.Eventually(t, f.Busy, time.Second, time.Millisecond)
	_, err := svc.Submit(context.Background(), f)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(log.block)
	require.NoError(t, <-done)
	assert.False(t, f.Busy())
	assert.Equal(t, []string{"insert"}, log.calls)
}

func TestSubmit_PublishFailureDoesNotFailRequest(t *testing.T) {
	svc, _, _, pub := newService(t)
	pub.err = errors.New("circuit breaker open")

	_, err := svc.Submit(context.Background(), expenseForm("12.50"))
	assert.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

func TestDelete_WrapsBackendError(t *testing.T) {
	svc, _, _, pub := newService(t)

	err := svc.Delete(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, pub.events)
}

func TestNewTransactionService_NilPublisher(t *testing.T) {
	svc := NewTransactionService(memory.New(nil), nil)
	_, err := svc.Submit(context.Background(), expenseForm("1"))
	assert.NoError(t, err)
}
