package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/tracker"
)

// --- fakes ---

type fakeDomains struct {
	mu sync.Mutex
	d  []domain.Domain
}

func (f *fakeDomains) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Domain(nil), f.d...), nil
}

type fakeSink struct {
	mu   sync.Mutex
	sigs []domain.Signal
}

func (f *fakeSink) Handle(ctx context.Context, sig domain.Signal) (tracker.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigs = append(f.sigs, sig)
	return tracker.Outcome{}, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sigs)
}

type fixedChecker struct{ ok bool }

func (c *fixedChecker) Check(ctx context.Context, target string) probe.CheckResult {
	if c.ok {
		return probe.CheckResult{Success: true, StatusCode: 200, LatencyMS: 1, Message: "200 OK"}
	}
	return probe.CheckResult{Success: false, Message: "dial tcp: connection refused"}
}

// --- tests ---

func TestProber_RunLoop_ReportsDown(t *testing.T) {
	doms := &fakeDomains{d: []domain.Domain{{ID: 1, Name: "example.com", IsUp: true}}}
	sink := &fakeSink{}

	p := NewProber(zap.NewNop(), doms, sink, &fixedChecker{ok: false}, 2*time.Millisecond, 200*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Wait a tiny bit for the immediate pass to execute.
	time.Sleep(20 * time.Millisecond)

	if sink.count() == 0 {
		t.Fatalf("expected at least one signal")
	}
	sink.mu.Lock()
	first := sink.sigs[0]
	sink.mu.Unlock()
	if first.DomainID != 1 || first.Kind != domain.SignalDown {
		t.Fatalf("unexpected signal: %+v", first)
	}
}

func TestProber_NoSignalWhenStateMatches(t *testing.T) {
	doms := &fakeDomains{d: []domain.Domain{
		{ID: 1, Name: "up.example.com", IsUp: true},
	}}
	sink := &fakeSink{}
	p := NewProber(zap.NewNop(), doms, sink, &fixedChecker{ok: true}, 0, time.Second, 2)

	p.RunOnce(context.Background())
	if sink.count() != 0 {
		t.Fatalf("expected no signals, got %d", sink.count())
	}
}

func TestProber_ReportsRecovery(t *testing.T) {
	doms := &fakeDomains{d: []domain.Domain{{ID: 2, Name: "down.example.com", IsUp: false}}}
	sink := &fakeSink{}
	p := NewProber(zap.NewNop(), doms, sink, &fixedChecker{ok: true}, 0, time.Second, 1)

	p.RunOnce(context.Background())
	if sink.count() != 1 || sink.sigs[0].Kind != domain.SignalUp {
		t.Fatalf("expected one up signal, got %+v", sink.sigs)
	}
}

func TestProber_HonoursSensitivity(t *testing.T) {
	doms := &fakeDomains{d: []domain.Domain{{ID: 3, Name: "flaky.example.com", IsUp: true, SensitivitySeconds: 60}}}
	sink := &fakeSink{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := NewProber(zap.NewNop(), doms, sink, &fixedChecker{ok: false}, 0, time.Second, 1)
	p.Clock = clock.Func(func() time.Time { return now })

	p.RunOnce(context.Background())
	now = now.Add(30 * time.Second)
	p.RunOnce(context.Background())
	if sink.count() != 0 {
		t.Fatalf("reported down inside the sensitivity window")
	}

	now = now.Add(31 * time.Second)
	p.RunOnce(context.Background())
	if sink.count() != 1 || sink.sigs[0].Kind != domain.SignalDown {
		t.Fatalf("expected a down signal after 61s, got %+v", sink.sigs)
	}
	if !sink.sigs[0].DetectedAt.Equal(now) {
		t.Fatalf("detected_at = %v, want %v", sink.sigs[0].DetectedAt, now)
	}
}

func TestNextDaily(t *testing.T) {
	loc := time.UTC
	before := time.Date(2024, 3, 1, 1, 30, 0, 0, loc)
	if got := NextDaily(before, 3); !got.Equal(time.Date(2024, 3, 1, 3, 0, 0, 0, loc)) {
		t.Fatalf("NextDaily before hour = %v", got)
	}
	at := time.Date(2024, 3, 1, 3, 0, 0, 0, loc)
	if got := NextDaily(at, 3); !got.Equal(time.Date(2024, 3, 2, 3, 0, 0, 0, loc)) {
		t.Fatalf("NextDaily at hour = %v", got)
	}
	end := time.Date(2024, 12, 31, 23, 0, 0, 0, loc)
	if got := NextDaily(end, 3); !got.Equal(time.Date(2025, 1, 1, 3, 0, 0, 0, loc)) {
		t.Fatalf("NextDaily across year = %v", got)
	}
}

func TestEvery_DisabledReturnsImmediately(t *testing.T) {
	called := false
	Every(context.Background(), zap.NewNop(), "noop", 0, func(context.Context) { called = true })
	if called {
		t.Fatalf("disabled job must not run")
	}
}
