package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/notify"
)

type registerPayload struct {
	Token       string `json:"token"`
	DeviceToken string `json:"deviceToken"`
	Platform    string `json:"platform"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var p registerPayload
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	token := strings.TrimSpace(p.Token)
	if token == "" {
		token = strings.TrimSpace(p.DeviceToken)
	}
	if token == "" {
		writeMessage(w, http.StatusBadRequest, "Missing token")
		return
	}
	platform := strings.ToLower(strings.TrimSpace(p.Platform))
	switch platform {
	case "android", "ios", "web":
	case "":
		platform = "unknown"
	default:
		writeMessage(w, http.StatusBadRequest, "Invalid platform")
		return
	}

	created, err := s.Store.AddReceiver(r.Context(), &domain.Receiver{
		Token:        token,
		Platform:     platform,
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Already registered"})
		return
	}
	s.Logger.Info("device_registered", zap.String("token", notify.Redact(token)), zap.String("platform", platform))
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Registered", "token": token})
}
