package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/tracker"
)

// DomainLister is the part of the store the prober reads.
type DomainLister interface {
	ListDomains(ctx context.Context) ([]domain.Domain, error)
}

// SignalSink receives the signals the prober derives; *ingest.Service
// satisfies it.
type SignalSink interface {
	Handle(ctx context.Context, sig domain.Signal) (tracker.Outcome, error)
}

// Prober checks every domain over HTTP and reports state changes as
// signals. A domain must fail for its sensitivity window before it is
// reported down; recoveries are reported on the first success.
type Prober struct {
	Logger      *zap.Logger
	Domains     DomainLister
	Sink        SignalSink
	Checker     probe.Checker
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
	Clock       clock.Clock

	mu           sync.Mutex
	failingSince map[domain.DomainID]time.Time
}

func NewProber(
	logger *zap.Logger,
	domains DomainLister,
	sink SignalSink,
	checker probe.Checker,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
) *Prober {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		Logger:       logger.Named("prober"),
		Domains:      domains,
		Sink:         sink,
		Checker:      checker,
		Interval:     interval,
		Timeout:      timeout,
		Concurrency:  concurrency,
		Clock:        clock.Real{},
		failingSince: make(map[domain.DomainID]time.Time),
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	Every(ctx, p.Logger, "prober", p.Interval, p.RunOnce)
}

func (p *Prober) RunOnce(ctx context.Context) {
	ds, err := p.Domains.ListDomains(ctx)
	if err != nil {
		p.Logger.Warn("prober_list_error", zap.Error(err))
		return
	}
	if len(ds) == 0 {
		return
	}

	sem := make(chan struct{}, p.Concurrency)
	var wg sync.WaitGroup

	for _, d := range ds {
		d := d
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, p.Timeout)
			defer cancel()
			out := p.Checker.Check(cctx, "https://"+d.Name)
			p.observe(ctx, d, out)
		}()
	}

	wg.Wait()
}

func (p *Prober) observe(ctx context.Context, d domain.Domain, out probe.CheckResult) {
	now := p.Clock.Now().UTC()
	p.Logger.Debug("prober_checked",
		zap.String("domain", d.Name),
		zap.Int("status", out.StatusCode),
		zap.Bool("up", out.Success),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
	)

	var kind domain.SignalKind
	p.mu.Lock()
	if out.Success {
		delete(p.failingSince, d.ID)
		if !d.IsUp {
			kind = domain.SignalUp
		}
	} else if d.IsUp {
		since, ok := p.failingSince[d.ID]
		if !ok {
			since = now
			p.failingSince[d.ID] = now
		}
		if now.Sub(since) >= time.Duration(d.SensitivitySeconds)*time.Second {
			kind = domain.SignalDown
			delete(p.failingSince, d.ID)
		}
	}
	p.mu.Unlock()

	if kind == "" {
		return
	}
	if _, err := p.Sink.Handle(ctx, domain.Signal{DomainID: d.ID, DetectedAt: now, Kind: kind}); err != nil {
		p.Logger.Warn("prober_signal_error",
			zap.String("domain", d.Name),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
