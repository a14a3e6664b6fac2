package http

import (
	"net/http"
	"strings"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/services"
)

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	bills, err := s.ledger.ListRecurring(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, log.OpList, &services.BackendError{Op: "list recurring bills", Err: err})
		return
	}
	out := make([]recurringDTO, 0, len(bills))
	for _, rb := range bills {
		out = append(out, s.present.recurring(rb))
	}
	NewResponse().JSON(map[string]any{"recurring": out}).Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	amount, err := p.Decimal("amount")
	if err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	rb := core.RecurringBill{
		UserID:      user,
		Description: p.Get("description"),
		Amount:      core.MoneyFromDecimal(amount),
		Category:    p.Get("category"),
		Every:       core.RepetitionTypes(strings.ToLower(p.Get("every"))),
		CardID:      p.Get("card_id"),
	}
	start, ok, err := p.Date("start_date", s.location())
	if err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	if !ok {
		start = s.clock.Now()
	}
	rb.StartDate = core.DateOf(start)
	end, ok, err := p.Date("end_date", s.location())
	if err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	if ok {
		rb.EndDate = core.DateOf(end)
	}
	if err := rb.Validate(); err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}

	saved, err := s.ledger.SaveRecurring(r.Context(), rb)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, &services.BackendError{Op: "save recurring bill", Err: err})
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(s.present.recurring(saved)).Write(w)
}
