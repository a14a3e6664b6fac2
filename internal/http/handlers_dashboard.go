package http

import (
	"net/http"
	"strconv"
	"strings"

	"carteira/internal/log"
)

const (
	defaultProjectionMonths = 6
	maxProjectionMonths     = 24
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	params := ParseMonthParams(r.URL.Query(), s.clock.Now())
	view, err := s.dashboard.Month(r.Context(), user, params.Year, params.Month)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(s.present.dashboard(view)).Write(w)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	months := defaultProjectionMonths
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxProjectionMonths {
			writeServiceError(w, r, log.OpRead,
				invalid("months must be a number between 1 and %d", maxProjectionMonths))
			return
		}
		months = n
	}
	proj, err := s.dashboard.Projection(r.Context(), user, s.clock.Now(), months)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(map[string]any{"months": s.present.projection(proj)}).Write(w)
}
