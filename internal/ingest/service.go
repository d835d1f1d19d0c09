package ingest

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/ratelimit"
	"github.com/hamed0406/uptimemonitor/internal/tracker"
)

// Tracker is satisfied by *tracker.Tracker.
type Tracker interface {
	Down(ctx context.Context, sig domain.Signal) (tracker.Outcome, error)
	Up(ctx context.Context, sig domain.Signal) (tracker.Outcome, error)
}

// Service is the single entry point for health signals, whatever transport
// they arrive on. Each domain id has its own admission window.
type Service struct {
	limiter *ratelimit.Limiter
	tracker Tracker
	clock   clock.Clock
	log     *zap.Logger
}

func NewService(l *ratelimit.Limiter, t Tracker, log *zap.Logger) *Service {
	if l == nil {
		l = ratelimit.New(ratelimit.DefaultCapacity, ratelimit.DefaultWindow)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{limiter: l, tracker: t, clock: clock.Real{}, log: log.Named("ingest")}
}

func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) Down(ctx context.Context, sig domain.Signal) (tracker.Outcome, error) {
	sig.Kind = domain.SignalDown
	return s.Handle(ctx, sig)
}

func (s *Service) Up(ctx context.Context, sig domain.Signal) (tracker.Outcome, error) {
	sig.Kind = domain.SignalUp
	return s.Handle(ctx, sig)
}

// Capacity and Window describe the per-domain admission limit.
func (s *Service) Capacity() int { return s.limiter.Capacity() }
func (s *Service) Window() time.Duration { return s.limiter.Window() }

// Handle dispatches on sig.Kind.
func (s *Service) Handle(ctx context.Context, sig domain.Signal) (tracker.Outcome, error) {
	out, _, err := s.HandleQuota(ctx, sig)
	return out, err
}

// HandleQuota is Handle plus the admissions left in the domain's window
// after this signal. remaining is -1 when the signal never reached the
// limiter.
func (s *Service) HandleQuota(ctx context.Context, sig domain.Signal) (out tracker.Outcome, remaining int, err error) {
	kind := string(sig.Kind)
	if err := sig.Validate(); err != nil {
		metrics.IncSignal(kind, "invalid")
		return tracker.Outcome{}, -1, err
	}
	if sig.Kind == "" {
		metrics.IncSignal(kind, "invalid")
		return tracker.Outcome{}, -1, &domain.ValidationError{Field: "kind", Msg: "required"}
	}

	key := strconv.FormatInt(int64(sig.DomainID), 10)
	ok, remaining := s.limiter.Admit(key, s.clock.Now())
	if !ok {
		metrics.IncRateLimited()
		metrics.IncSignal(kind, "rate_limited")
		s.log.Warn("ingest_rate_limited", zap.String("domain_id", key), zap.String("kind", kind))
		return tracker.Outcome{}, 0, &domain.RateLimitedError{Key: key, RetryAfter: s.limiter.Window()}
	}

	if sig.Kind == domain.SignalDown {
		out, err = s.tracker.Down(ctx, sig)
	} else {
		out, err = s.tracker.Up(ctx, sig)
	}
	if err != nil {
		metrics.IncSignal(kind, metrics.ResultError)
		return out, remaining, err
	}
	metrics.IncSignal(kind, metrics.ResultSuccess)
	return out, remaining, nil
}
