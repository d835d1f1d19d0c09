package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
)

// Every runs fn immediately and then on each tick until ctx is done.
// A zero interval disables the job.
func Every(ctx context.Context, log *zap.Logger, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		log.Info("job_disabled", zap.String("job", name))
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("job_stopped", zap.String("job", name))
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// DailyAt runs fn once a day at hour:00 in loc.
func DailyAt(ctx context.Context, log *zap.Logger, name string, hour int, loc *time.Location, c clock.Clock, fn func(context.Context)) {
	if loc == nil {
		loc = time.UTC
	}
	if c == nil {
		c = clock.Real{}
	}
	for {
		wait := NextDaily(c.Now().In(loc), hour).Sub(c.Now())
		log.Debug("job_scheduled", zap.String("job", name), zap.Duration("in", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info("job_stopped", zap.String("job", name))
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// NextDaily returns the next hour:00 strictly after now, in now's location.
func NextDaily(now time.Time, hour int) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, m, d+1, hour, 0, 0, 0, now.Location())
	}
	return next
}
