package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/ledger/memory"
	"carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/prefs"
)

// 2026-02-27, one day before the end of a 28-day February.
var testNow = time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, backend ledger.Backend, opts Options) *Server {
	t.Helper()
	if backend == nil {
		backend = memory.New([]string{"Casa", "Salário"})
	}
	if opts.Clock == nil {
		opts.Clock = core.FixedClock(testNow)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	}
	s := NewServer(":0", backend, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	return doAs(s, "u1", method, path, body)
}

func doAs(s *Server, user, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthReadyAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := doAs(s, "", http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
	rr := doAs(s, "", http.MethodGet, "/metrics", "")
	assert.Contains(t, rr.Body.String(), "http_requests_total")
	assert.Contains(t, rr.Body.String(), `cache_entries{type="dashboard"}`)

	down := newTestServer(t, nil, Options{Ready: func(context.Context) error { return errors.New("database is locked") }})
	rr = doAs(down, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "database is locked")
}

func TestMiddlewareHeaders(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rr := do(s, http.MethodGet, "/cards", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestMissingUser(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rr := doAs(s, "", http.MethodGet, "/transactions", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateSingleTransaction(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Mercado","amount":"150.00","type":"expense","category":"Casa"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	got := decode[submitDTO](t, rr)
	assert.Equal(t, "single", got.Mode)
	require.NotNil(t, got.Transaction)
	assert.Equal(t, int64(15000), *got.Transaction.Amount.Cents)
	assert.Equal(t, "R$ 150,00", got.Transaction.Amount.Formatted)
	assert.Equal(t, "2026-02-27", got.Transaction.Date)
	assert.Empty(t, got.Transaction.InstallmentGroupID)
}

func TestCreateInstallmentSeries(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Geladeira","amount":1200,"type":"expense","category":"Casa","is_installment":true,"installments":3,"purchase_date":"2026-01-31"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	got := decode[submitDTO](t, rr)
	assert.Equal(t, "series", got.Mode)
	assert.NotEmpty(t, got.GroupID)

	rr = do(s, http.MethodGet, "/transactions?year=2026&month=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Transactions []transactionDTO `json:"transactions"`
	}](t, rr)
	require.Len(t, list.Transactions, 1)
	row := list.Transactions[0]
	assert.Equal(t, int64(40000), *row.Amount.Cents)
	assert.Equal(t, "2026-02-28", row.Date)
	assert.Equal(t, 2, row.InstallmentNumber)
	assert.Equal(t, 3, row.TotalInstallments)
	assert.Equal(t, got.GroupID, row.InstallmentGroupID)
}

func TestIncomeIgnoresInstallments(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Salário","amount":"8000","type":"income","category":"Salário","is_installment":true,"installments":5}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "single", decode[submitDTO](t, rr).Mode)
}

func TestEditConvertsSingleToSeries(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Notebook","amount":"3000","type":"expense","category":"Casa","purchase_date":"2026-02-10"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[submitDTO](t, rr).Transaction.ID

	rr = do(s, http.MethodGet, "/transactions/"+id+"/form", "")
	require.Equal(t, http.StatusOK, rr.Code)
	form := decode[formDTO](t, rr)
	assert.Equal(t, id, form.EditingID)
	assert.Equal(t, "3000.00", form.Amount)

	rr = do(s, http.MethodPut, "/transactions/"+id, `{"is_installment":true,"installments":2}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[submitDTO](t, rr)
	assert.Equal(t, "series", got.Mode)
	assert.Equal(t, id, got.Replaced)

	rr = do(s, http.MethodGet, "/transactions/"+id+"/form", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(s, http.MethodGet, "/transactions?year=2026&month=3", "")
	list := decode[struct {
		Transactions []transactionDTO `json:"transactions"`
	}](t, rr)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, int64(150000), *list.Transactions[0].Amount.Cents)
}

func TestEditSingleKeepsUntouchedFields(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Padaria","amount":"12.50","type":"expense","category":"Casa"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[submitDTO](t, rr).Transaction.ID

	rr = do(s, http.MethodPut, "/transactions/"+id, `{"amount":"13.75"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tx := decode[submitDTO](t, rr).Transaction
	require.NotNil(t, tx)
	assert.Equal(t, id, tx.ID)
	assert.Equal(t, "Padaria", tx.Description)
	assert.Equal(t, int64(1375), *tx.Amount.Cents)
}

func TestCreateTransactionValidation(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad amount", `{"description":"x","amount":"abc","type":"expense","category":"Casa"}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"description":"x","amount":"0","type":"expense","category":"Casa"}`, http.StatusUnprocessableEntity},
		{"missing description", `{"amount":"10","type":"expense","category":"Casa"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"description":"x","amount":"10","type":"expense","category":"Casa","purchase_date":"31/01/2026"}`, http.StatusUnprocessableEntity},
		{"bad type", `{"description":"x","amount":"10","type":"transfer","category":"Casa"}`, http.StatusUnprocessableEntity},
		{"installment below one cent", `{"description":"x","amount":"0.01","type":"expense","category":"Casa","is_installment":true,"installments":3}`, http.StatusUnprocessableEntity},
		{"malformed body", `{"description":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(s, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

type blockingBackend struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Store.Insert(ctx, tx)
}

func TestOverlappingSubmissionIsRejected(t *testing.T) {
	backend := &blockingBackend{
		Store:   memory.New(nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestServer(t, backend, Options{})
	body := `{"description":"Mercado","amount":"10","type":"expense","category":"Casa"}`

	first := make(chan *httptest.ResponseRecorder)
	go func() { first <- do(s, http.MethodPost, "/transactions", body) }()
	<-backend.entered

	rr := do(s, http.MethodPost, "/transactions", body)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Reads are not held up by the pending submission.
	other := doAs(s, "u2", http.MethodGet, "/transactions", "")
	assert.Equal(t, http.StatusOK, other.Code)

	close(backend.release)
	assert.Equal(t, http.StatusCreated, (<-first).Code)
}

type failingBackend struct {
	*memory.Store
	err error
}

func (f *failingBackend) ListByMonth(context.Context, string, int, int) ([]core.Transaction, error) {
	return nil, f.err
}

func (f *failingBackend) Insert(context.Context, core.Transaction) (core.Transaction, error) {
	return core.Transaction{}, f.err
}

func TestBackendErrorsKeepRawMessage(t *testing.T) {
	s := newTestServer(t, &failingBackend{Store: memory.New(nil), err: errors.New("connection reset by peer")}, Options{})

	for _, rr := range []*httptest.ResponseRecorder{
		do(s, http.MethodGet, "/transactions", ""),
		do(s, http.MethodPost, "/transactions", `{"description":"x","amount":"1","type":"expense","category":"Casa"}`),
		do(s, http.MethodGet, "/dashboard", ""),
	} {
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "connection reset by peer", decode[errorBody](t, rr).Error)
	}
}

func TestDeleteTransaction(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rr := do(s, http.MethodPost, "/transactions",
		`{"description":"Cinema","amount":"40","type":"expense","category":"Lazer"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[submitDTO](t, rr).Transaction.ID

	rr = do(s, http.MethodDelete, "/transactions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(s, http.MethodDelete, "/transactions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCards(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/cards", `{"name":"Nubank","closing_day":31,"due_day":8,"credit_limit":"5000"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	card := decode[cardDTO](t, rr)
	require.NotNil(t, card.Cycle)
	// 31 clamps to Feb 28, which is still ahead of the 27th.
	assert.Equal(t, "open", card.Cycle.Status)
	assert.Equal(t, 28, card.Cycle.ClosingDay)
	assert.False(t, card.Cycle.IsGoodDayToBuy)
	assert.Equal(t, "2026-02-28", card.Cycle.BestPurchaseDate)

	rr = do(s, http.MethodPost, "/cards", `{"id":"`+card.ID+`","name":"Nubank","closing_day":20,"due_day":27}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "closed-current", decode[cardDTO](t, rr).Cycle.Status)

	rr = do(s, http.MethodGet, "/cards", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Cards []cardDTO `json:"cards"`
	}](t, rr)
	require.Len(t, list.Cards, 1)
	assert.Equal(t, 20, list.Cards[0].ClosingDay)

	rr = do(s, http.MethodPost, "/cards", `{"name":"Inter","closing_day":32,"due_day":8}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(s, http.MethodPost, "/cards", `{"id":"missing","name":"Inter","closing_day":3,"due_day":8}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardAndMasking(t *testing.T) {
	p, err := prefs.Load(filepath.Join(t.TempDir(), "prefs.json"))
	require.NoError(t, err)
	s := newTestServer(t, nil, Options{Prefs: p})

	for _, body := range []string{
		`{"description":"Salário","amount":"5000","type":"income","category":"Salário"}`,
		`{"description":"Aluguel","amount":"1800","type":"expense","category":"Casa"}`,
	} {
		require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/transactions", body).Code)
	}

	rr := do(s, http.MethodGet, "/dashboard?year=2026&month=2", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[dashboardDTO](t, rr)
	assert.Equal(t, int64(500000), *view.Income.Cents)
	assert.Equal(t, int64(180000), *view.Expenses.Cents)
	assert.Equal(t, "R$ 3.200,00", view.Balance.Formatted)
	assert.Equal(t, 2, view.Transactions)

	// The cached view is dropped on the next write.
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/transactions",
		`{"description":"Luz","amount":"200","type":"expense","category":"Casa"}`).Code)
	view = decode[dashboardDTO](t, do(s, http.MethodGet, "/dashboard?year=2026&month=2", ""))
	assert.Equal(t, int64(200000), *view.Expenses.Cents)

	rr = do(s, http.MethodPost, "/preferences/mask/toggle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[preferencesDTO](t, rr).Masked)

	view = decode[dashboardDTO](t, do(s, http.MethodGet, "/dashboard?year=2026&month=2", ""))
	assert.Nil(t, view.Income.Cents)
	assert.Equal(t, prefs.MaskedAmount, view.Income.Formatted)

	assert.True(t, decode[preferencesDTO](t, do(s, http.MethodGet, "/preferences", "")).Masked)
	assert.Contains(t, doAs(s, "", http.MethodGet, "/metrics", "").Body.String(), "mask_toggles_total 1")

	rr = do(s, http.MethodGet, "/dashboard?year=2026&month=13", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestProjection(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/transactions",
		`{"description":"TV","amount":"3000","type":"expense","category":"Casa","is_installment":true,"installments":3}`).Code)

	rr := do(s, http.MethodGet, "/dashboard/projection?months=4", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[struct {
		Months []projectionDTO `json:"months"`
	}](t, rr)
	require.Len(t, got.Months, 4)
	for i, want := range []int64{100000, 100000, 100000, 0} {
		assert.Equal(t, want, *got.Months[i].Committed.Cents, "month %d", i)
	}

	for _, q := range []string{"0", "25", "abc"} {
		rr = do(s, http.MethodGet, "/dashboard/projection?months="+q, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, q)
	}
}

func TestRecurring(t *testing.T) {
	s := newTestServer(t, nil, Options{})

	rr := do(s, http.MethodPost, "/recurring",
		`{"description":"Internet","amount":"99.90","category":"Casa","every":"monthly","start_date":"2026-01-10"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "monthly", decode[recurringDTO](t, rr).Every)

	rr = do(s, http.MethodPost, "/recurring",
		`{"description":"Internet","amount":"99.90","category":"Casa","every":"hourly"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(s, http.MethodGet, "/recurring", "")
	list := decode[struct {
		Recurring []recurringDTO `json:"recurring"`
	}](t, rr)
	require.Len(t, list.Recurring, 1)
	assert.Equal(t, "2026-01-10", list.Recurring[0].StartDate)
}

func TestNewFormDefaults(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	form := decode[formDTO](t, do(s, http.MethodGet, "/transactions/form", ""))

	assert.Equal(t, "expense", form.Type)
	assert.Equal(t, 1, form.Installments)
	assert.Equal(t, "2026-02-27", form.PurchaseDate)
	assert.Equal(t, form.PurchaseDate, form.FirstInstallmentDate)
	assert.Equal(t, "single", form.Mode)
}

func TestWritesAreRateLimited(t *testing.T) {
	s := newTestServer(t, nil, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})
	body := `{"description":"x","amount":"1","type":"expense","category":"Casa"}`

	assert.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/transactions", body).Code)
	rr := do(s, http.MethodPost, "/transactions", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/transactions", "").Code)
}
