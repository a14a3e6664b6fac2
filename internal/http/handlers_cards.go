package http

import (
	"net/http"

	"carteira/internal/billing"
	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/services"
)

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	cards, err := s.dashboard.Cards(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	out := make([]cardDTO, 0, len(cards))
	for _, c := range cards {
		out = append(out, s.present.cardStatus(c, false))
	}
	NewResponse().JSON(map[string]any{"cards": out}).Write(w)
}

// handleSaveCard creates a card, or updates it when the body has an id.
func (s *Server) handleSaveCard(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	card := core.Card{ID: p.Get("id"), UserID: user, Name: p.Get("name")}
	var err error
	if card.ClosingDay, err = p.Int("closing_day", 0); err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	if card.DueDay, err = p.Int("due_day", 0); err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	limit, err := p.Decimal("credit_limit")
	if err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}
	card.CreditLimit = core.MoneyFromDecimal(limit)
	if err := card.Validate(); err != nil {
		writeServiceError(w, r, log.OpCreate, invalid("%v", err))
		return
	}

	created := card.ID == ""
	saved, err := s.ledger.SaveCard(r.Context(), card)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, &services.BackendError{Op: "save card", Err: err})
		return
	}
	s.dashboard.Invalidate(user)

	// Validate bounded the closing day, so Resolve cannot fail here.
	cycle, _ := billing.Resolve(s.clock.Now(), saved.ClosingDay)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	NewResponse().Status(status).
		JSON(s.present.cardStatus(services.CardStatus{Card: saved, Cycle: cycle}, false)).
		Write(w)
}
