package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/analytics"
	"github.com/hamed0406/uptimemonitor/internal/certmon"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/ratelimit"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/tracker"
)

// Signals is satisfied by *ingest.Service.
type Signals interface {
	HandleQuota(ctx context.Context, sig domain.Signal) (tracker.Outcome, int, error)
	Capacity() int
	Window() time.Duration
}

// CertChecker is satisfied by *certmon.Monitor.
type CertChecker interface {
	CheckOne(ctx context.Context, id domain.DomainID) (certmon.Result, error)
}

// Analytics is satisfied by *analytics.Engine.
type Analytics interface {
	Today(ctx context.Context) (analytics.TodaySummary, error)
	Domain(ctx context.Context, id domain.DomainID, days int) (analytics.DomainReport, error)
}

type Server struct {
	Logger    *zap.Logger
	Store     repo.Store
	Signals   Signals
	Certs     CertChecker
	Analytics Analytics
}

func NewServer(l *zap.Logger, store repo.Store, sig Signals, certs CertChecker, an Analytics) *Server {
	return &Server{Logger: l, Store: store, Signals: sig, Certs: certs, Analytics: an}
}

// Router builds the HTTP surface. origins empty means allow all; a nil
// ipLimit disables the per-IP limit.
func (s *Server) Router(keys apimw.Keys, origins []string, ipLimit *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(apimw.RequestLog(s.Logger))
	r.Use(chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Window", "X-Process-Time", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(ipLimit, nil))

		r.Route("/events", func(r chi.Router) {
			r.Use(apimw.RequireClient(keys))
			r.Post("/down", s.handleSignal(domain.SignalDown))
			r.Post("/up", s.handleSignal(domain.SignalUp))
		})

		r.Route("/domains", func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Get("/", s.handleListDomains)
			r.Post("/", s.handleCreateDomain)
			r.Get("/{id}", s.handleGetDomain)
			r.Put("/{id}", s.handleUpdateDomain)
			r.Delete("/{id}", s.handleDeleteDomain)
			r.Post("/{id}/check-ssl", s.handleCheckCert)
		})

		r.Post("/devices/register", s.handleRegisterDevice)

		r.Route("/analytics", func(r chi.Router) {
			r.Use(apimw.RequireClient(keys))
			r.Get("/today", s.handleAnalyticsToday)
			r.Get("/domain/{id}", s.handleAnalyticsDomain)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *domain.ValidationError
		re *domain.RateLimitedError
	)
	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &re):
		apimw.WriteRateLimited(w, int(re.RetryAfter.Seconds()),
			"Too many requests for domain "+re.Key+". Try again later.")
	case errors.Is(err, domain.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrConflict):
		writeMessage(w, http.StatusConflict, "Already exists")
	case errors.Is(err, domain.ErrPersistence):
		s.Logger.Error("request_persistence_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeMessage(w, http.StatusServiceUnavailable, "Storage unavailable, retry later")
	default:
		s.Logger.Error("request_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}
