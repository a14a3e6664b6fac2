package http

import (
	"net/http"

	"carteira/internal/log"
)

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(preferencesDTO{Masked: s.prefs.Masked()}).Write(w)
}

func (s *Server) handleToggleMask(w http.ResponseWriter, r *http.Request) {
	masked, err := s.prefs.Toggle()
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to persist preferences",
			log.NewFields().WithComponent(log.ComponentPrefs).WithOperation(log.OpToggle).WithError(err).ToSlice()...)
		InternalServerError("could not save preferences").Write(w)
		return
	}
	NewResponse().JSON(preferencesDTO{Masked: masked}).Write(w)
}
