package http

import (
	"net/http"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	params := ParseMonthParams(r.URL.Query(), s.clock.Now())
	if params.Month < 1 || params.Month > 12 {
		writeServiceError(w, r, log.OpList, core.ErrInvalidMonth)
		return
	}
	txs, err := s.ledger.ListByMonth(r.Context(), user, params.Year, params.Month)
	if err != nil {
		writeServiceError(w, r, log.OpList, &services.BackendError{Op: "list transactions", Err: err})
		return
	}
	NewResponse().JSON(map[string]any{
		"year":         params.Year,
		"month":        params.Month,
		"transactions": s.present.transactions(txs),
	}).Write(w)
}

func (s *Server) handleNewForm(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(s.present.form(services.NewForm(user, s.clock.Now()))).Write(w)
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	f, err := s.transactions.LoadForm(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(s.present.form(f)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	release, err := s.acquire(user + "|new")
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	defer release()

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	f := services.NewForm(user, s.clock.Now())
	if err := applyForm(p, f, s.location()); err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}

	res, err := s.transactions.Submit(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	s.written(r, log.OpCreate, user, res)
	NewResponse().Status(http.StatusCreated).JSON(s.present.submit(res)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	release, err := s.acquire(user + "|" + id)
	if err != nil {
		writeServiceError(w, r, log.OpUpdate, err)
		return
	}
	defer release()

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	f, err := s.transactions.LoadForm(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, r, log.OpUpdate, err)
		return
	}
	if err := applyForm(p, f, s.location()); err != nil {
		writeServiceError(w, r, log.OpUpdate, err)
		return
	}

	res, err := s.transactions.Submit(r.Context(), f)
	if res.Replaced != "" {
		// The original row is gone whether or not the series was created.
		s.dashboard.Invalidate(user)
	}
	if err != nil {
		writeServiceError(w, r, log.OpUpdate, err)
		return
	}
	op := log.OpUpdate
	if res.Replaced != "" {
		op = log.OpConvert
	}
	s.written(r, op, user, res)
	NewResponse().JSON(s.present.submit(res)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	release, err := s.acquire(user + "|" + id)
	if err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	defer release()

	if err := s.transactions.Delete(r.Context(), user, id); err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	s.dashboard.Invalidate(user)
	s.appMetrics.written.Add(1)
	s.structured.LogTransactionWritten(r.Context(), log.OpDelete, user, id, "", 0)
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) written(r *http.Request, op, user string, res services.SubmitResult) {
	s.dashboard.Invalidate(user)
	s.appMetrics.written.Add(1)
	s.structured.LogTransactionWritten(r.Context(), op, user, res.Transaction.ID, res.GroupID, res.Transaction.Amount.Cents)
}

// applyForm copies the fields present in the body onto f. Absent fields keep
// the form's current values, so an edit only needs the changed ones.
func applyForm(p *RequestBodyParser, f *services.FormState, loc *time.Location) error {
	if p.Has("description") {
		f.Description = p.Get("description")
	}
	if p.Has("amount") {
		d, err := p.Decimal("amount")
		if err != nil {
			return invalid("%v", err)
		}
		f.Amount = d
	}
	if p.Has("type") {
		f.Type = core.TransactionType(strings.ToLower(p.Get("type")))
	}
	if p.Has("category") {
		f.Category = p.Get("category")
	}
	if p.Has("card_id") {
		f.CardID = p.Get("card_id")
	}
	if p.Has("is_installment") {
		b, err := p.Bool("is_installment", false)
		if err != nil {
			return invalid("%v", err)
		}
		f.IsInstallment = b
	}
	if p.Has("installments") {
		n, err := p.Int("installments", 1)
		if err != nil {
			return invalid("%v", err)
		}
		f.Installments = n
	}

	purchase, ok, err := p.Date("purchase_date", loc)
	if err != nil {
		return invalid("%v", err)
	}
	if ok {
		f.SetPurchaseDate(purchase)
	}
	first, ok, err := p.Date("first_installment_date", loc)
	if err != nil {
		return invalid("%v", err)
	}
	if ok {
		f.SetFirstInstallmentDate(first)
	}
	return nil
}
