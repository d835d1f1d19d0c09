package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
)

// domainInput is the create/update payload. Absent fields keep their
// current value on update.
type domainInput struct {
	Name            *string `json:"name"`
	Label           *string `json:"label"`
	CustomSoundDown *string `json:"custom_sound_down"`
	CustomSoundUp   *string `json:"custom_sound_up"`
	Sensitivity     *int    `json:"sensitivity"`
	CertEnabled     *bool   `json:"ssl_enabled"`
}

type domainView struct {
	domain.Domain
	Status string `json:"status"`
}

func view(d domain.Domain) domainView {
	return domainView{Domain: d, Status: d.Status()}
}

func (in domainInput) apply(d *domain.Domain) error {
	if in.Name != nil {
		host, err := probe.NormalizeHost(*in.Name)
		if err != nil {
			return &domain.ValidationError{Field: "name", Msg: "must be a hostname like example.com"}
		}
		d.Name = strings.ToLower(host)
	}
	if in.Label != nil {
		l := strings.TrimSpace(*in.Label)
		d.Label = &l
		if l == "" {
			d.Label = nil
		}
	}
	if in.CustomSoundDown != nil {
		d.CustomSoundDown = in.CustomSoundDown
	}
	if in.CustomSoundUp != nil {
		d.CustomSoundUp = in.CustomSoundUp
	}
	if in.Sensitivity != nil {
		if *in.Sensitivity < 0 {
			return &domain.ValidationError{Field: "sensitivity", Msg: "must not be negative"}
		}
		d.SensitivitySeconds = *in.Sensitivity
	}
	if in.CertEnabled != nil {
		d.CertEnabled = *in.CertEnabled
	}
	return nil
}

func pathID(r *http.Request) (domain.DomainID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Msg: "must be a positive integer"}
	}
	return domain.DomainID(id), nil
}

func (s *Server) loadDomain(r *http.Request) (*domain.Domain, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	d, err := s.Store.GetDomain(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	ds, err := s.Store.ListDomains(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]domainView, 0, len(ds))
	for _, d := range ds {
		out = append(out, view(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d, err := s.loadDomain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(*d))
}

func (s *Server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	var in domainInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Name == nil {
		s.writeError(w, r, &domain.ValidationError{Field: "name", Msg: "required"})
		return
	}
	d := &domain.Domain{IsUp: true, CertEnabled: true}
	if err := in.apply(d); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.UpsertDomain(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("domain_created", zap.Int64("id", int64(d.ID)), zap.String("name", d.Name))

	if d.CertEnabled && s.Certs != nil {
		res, err := s.Certs.CheckOne(r.Context(), d.ID)
		if err != nil || !res.OK {
			s.Logger.Warn("domain_initial_cert_check_failed",
				zap.String("name", d.Name), zap.String("kind", res.ErrorKind), zap.Error(err))
		}
		if fresh, err := s.Store.GetDomain(r.Context(), d.ID); err == nil && fresh != nil {
			d = fresh
		}
	}
	writeJSON(w, http.StatusCreated, view(*d))
}

func (s *Server) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	d, err := s.loadDomain(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in domainInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(d); err != nil {
		s.writeError(w, r, err)
		return
	}
	// settings only: status and cert fields may change underneath us
	if err := s.Store.UpdateSettings(r.Context(), d.ID, d.Settings()); err != nil {
		s.writeError(w, r, err)
		return
	}
	fresh, err := s.Store.GetDomain(r.Context(), d.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if fresh == nil {
		s.writeError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view(*fresh))
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.DeleteDomain(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("domain_deleted", zap.Int64("id", int64(id)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Domain deleted"})
}

func (s *Server) handleCheckCert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.Certs == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Certificate checks disabled")
		return
	}
	res, err := s.Certs.CheckOne(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "SSL certificate checked successfully"
	if !res.OK {
		msg = "SSL certificate check failed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           res.OK,
		"message":           msg,
		"notification_sent": res.Alerted,
		"ssl_info":          res,
	})
}
