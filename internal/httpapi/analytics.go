package httpapi

import (
	"net/http"
	"strconv"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func (s *Server) handleAnalyticsToday(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Analytics.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAnalyticsDomain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, &domain.ValidationError{Field: "days", Msg: "must be an integer"})
			return
		}
		days = n
	}
	rep, err := s.Analytics.Domain(r.Context(), id, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
