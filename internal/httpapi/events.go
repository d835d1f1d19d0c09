package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
)

func (s *Server) handleSignal(kind domain.SignalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sig domain.Signal
		if err := decode(r, &sig); err != nil {
			s.writeError(w, r, err)
			return
		}
		sig.Kind = kind

		out, remaining, err := s.Signals.HandleQuota(r.Context(), sig)
		if remaining >= 0 {
			apimw.SetQuotaHeaders(w, s.Signals.Capacity(), remaining, int(s.Signals.Window().Seconds()))
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if out.NoActiveIncident {
			writeMessage(w, http.StatusNotFound, out.Message)
			return
		}

		s.Logger.Info("signal_handled",
			zap.String("kind", string(kind)),
			zap.Int64("domain_id", int64(sig.DomainID)),
			zap.String("client", apimw.ClientName(r.Context())),
			zap.Bool("status_changed", out.StatusChanged),
		)
		out.Notifications = out.Notifications.Redacted()
		writeJSON(w, http.StatusOK, out)
	}
}
