package analytics

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const (
	day  = 24 * time.Hour
	week = 7 * day

	hourCapacitySeconds = 3600.0
	dayCapacityMinutes  = 1440.0
)

// Source is the read side the engine needs; repo.Store satisfies it.
type Source interface {
	GetDomain(ctx context.Context, id domain.DomainID) (*domain.Domain, error)
	Incidents(ctx context.Context, q repo.IncidentQuery) ([]domain.Incident, error)
}

type Options struct {
	// ScaleMTBFWindow makes the MTBF fallback use the requested window
	// instead of a fixed seven days.
	ScaleMTBFWindow bool
	Location        *time.Location
	Clock           clock.Clock
}

type TodaySummary struct {
	TotalIncidents int     `json:"total_incidents"`
	TotalDowntime  int64   `json:"total_downtime"`
	WorstDomain    *string `json:"worst_domain"`
	MTTR           int64   `json:"mttr"`
}

// Bucket is one hour (24h view) or one day (7/30 day views).
type Bucket struct {
	Label           string  `json:"date"`
	Incidents       int     `json:"incidents"`
	TotalDowntime   int64   `json:"total_downtime"`
	UptimeMinutes   float64 `json:"uptime_minutes"`
	DowntimeMinutes float64 `json:"downtime_minutes"`
}

type DomainReport struct {
	DomainID         domain.DomainID   `json:"domain_id"`
	Days             int               `json:"days"`
	TotalIncidents   int               `json:"total_incidents"`
	TotalDowntime    int64             `json:"total_downtime"`
	MTTR             int64             `json:"mttr"`
	MTBF             int64             `json:"mtbf"`
	WorstDuration    int64             `json:"worst_duration"`
	UptimePercentage float64           `json:"uptime_percentage"`
	Logs             []domain.Incident `json:"logs"`
	Buckets          []Bucket          `json:"daily_stats"`
}

// Engine computes reliability statistics from the incident log. It never
// writes.
type Engine struct {
	src  Source
	opts Options
	log  *zap.Logger
}

func New(src Source, opts Options, log *zap.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{src: src, opts: opts, log: log.Named("analytics")}
}

func (e *Engine) now() time.Time { return e.opts.Clock.Now().In(e.opts.Location) }

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Today summarizes incidents that started on the current calendar day.
func (e *Engine) Today(ctx context.Context) (TodaySummary, error) {
	start := time.Now()
	today := midnight(e.now())
	logs, err := e.src.Incidents(ctx, repo.IncidentQuery{
		From: today,
		To:   today.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		metrics.ObserveAnalytics("today", metrics.ResultError, time.Since(start))
		return TodaySummary{}, err
	}

	var s TodaySummary
	s.TotalIncidents = len(logs)
	worst := -1
	for i := range logs {
		s.TotalDowntime += logs[i].Duration()
		if worst < 0 || logs[i].Duration() > logs[worst].Duration() {
			worst = i
		}
	}
	if worst >= 0 {
		d, err := e.src.GetDomain(ctx, logs[worst].DomainID)
		if err != nil {
			metrics.ObserveAnalytics("today", metrics.ResultError, time.Since(start))
			return TodaySummary{}, err
		}
		if d != nil {
			name := d.Name
			s.WorstDomain = &name
		}
	}
	s.MTTR = mttr(resolved(logs))
	metrics.ObserveAnalytics("today", metrics.ResultSuccess, time.Since(start))
	return s, nil
}

// Domain builds the report for one domain over the last days (1, 7 or 30).
func (e *Engine) Domain(ctx context.Context, id domain.DomainID, days int) (DomainReport, error) {
	if days != 1 && days != 7 && days != 30 {
		return DomainReport{}, &domain.ValidationError{Field: "days", Msg: "must be 1, 7 or 30"}
	}
	began := time.Now()
	now := e.now()
	today := midnight(now)
	startDate := today.AddDate(0, 0, -(days - 1))

	// one extra day on each side absorbs timezone skew; totals use the full
	// fetch, buckets re-filter.
	logs, err := e.src.Incidents(ctx, repo.IncidentQuery{
		DomainID: id,
		From:     startDate.AddDate(0, 0, -1),
		To:       today.AddDate(0, 0, 1),
	})
	if err != nil {
		metrics.ObserveAnalytics("domain", metrics.ResultError, time.Since(began))
		return DomainReport{}, err
	}

	r := DomainReport{DomainID: id, Days: days, TotalIncidents: len(logs), Logs: logs}
	if r.Logs == nil {
		r.Logs = []domain.Incident{}
	}
	for i := range logs {
		d := effectiveDuration(&logs[i], now)
		r.TotalDowntime += d
		if d > r.WorstDuration {
			r.WorstDuration = d
		}
	}

	res := resolved(logs)
	r.MTTR = mttr(res)

	fixed := int64(week / time.Second)
	if e.opts.ScaleMTBFWindow {
		fixed = int64(days) * 86400
	}
	r.MTBF = mtbf(res, r.TotalIncidents, r.TotalDowntime, fixed)

	period := float64(days * 86400)
	r.UptimePercentage = round2((period - float64(r.TotalDowntime)) / period * 100)
	if r.UptimePercentage < 0 {
		metrics.IncUptimeAnomaly()
		e.log.Warn("analytics_negative_uptime",
			zap.Int64("domain_id", int64(id)),
			zap.Int("days", days),
			zap.Int64("total_downtime", r.TotalDowntime),
			zap.Float64("uptime_percentage", r.UptimePercentage),
		)
	}

	if days == 1 {
		r.Buckets = hourly(logs, now)
	} else {
		r.Buckets = daily(logs, startDate, days, e.opts.Location)
	}

	metrics.ObserveAnalytics("domain", metrics.ResultSuccess, time.Since(began))
	e.log.Debug("analytics_domain_report",
		zap.Int64("domain_id", int64(id)),
		zap.Int("days", days),
		zap.Int("incidents", r.TotalIncidents),
		zap.Int64("mttr", r.MTTR),
		zap.Int64("mtbf", r.MTBF),
	)
	return r, nil
}

// effectiveDuration counts open incidents up to now.
func effectiveDuration(inc *domain.Incident, now time.Time) int64 {
	if inc.DurationSeconds != nil {
		return *inc.DurationSeconds
	}
	if inc.Resolved {
		return 0
	}
	d := int64(now.Sub(inc.Start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// resolved keeps records that count towards repair time: closed with a
// positive duration.
func resolved(logs []domain.Incident) []domain.Incident {
	var out []domain.Incident
	for _, l := range logs {
		if l.Resolved && l.Duration() > 0 {
			out = append(out, l)
		}
	}
	return out
}

func mttr(res []domain.Incident) int64 {
	if len(res) == 0 {
		return 0
	}
	var sum int64
	for _, l := range res {
		sum += l.Duration()
	}
	return sum / int64(len(res))
}

func mtbf(res []domain.Incident, incidents int, downtime, window int64) int64 {
	switch {
	case len(res) >= 2:
		var (
			sum float64
			n   int
		)
		for i := 1; i < len(res); i++ {
			prev := res[i-1]
			if prev.End == nil {
				continue
			}
			gap := res[i].Start.Sub(*prev.End).Seconds()
			if gap > 0 {
				sum += gap
				n++
			}
		}
		if n > 0 {
			return int64(sum / float64(n))
		}
		if incidents > 1 {
			return (window - downtime) / int64(incidents-1)
		}
		return 0
	case len(res) == 1:
		return window - downtime
	default:
		return 0
	}
}

func hourly(logs []domain.Incident, now time.Time) []Bucket {
	y, m, d := now.Date()
	current := time.Date(y, m, d, now.Hour(), 0, 0, 0, now.Location())

	out := make([]Bucket, 0, 24)
	for i := 0; i < 24; i++ {
		hs := current.Add(-time.Duration(23-i) * time.Hour)
		he := hs.Add(time.Hour)

		var (
			down float64
			n    int
		)
		for j := range logs {
			ls := logs[j].Start
			le := logs[j].EndOr(now)
			if ls.Before(he) && le.After(hs) {
				down += minTime(le, he).Sub(maxTime(ls, hs)).Seconds()
				n++
			}
		}
		out = append(out, Bucket{
			Label:           hs.Format("15:04"),
			Incidents:       n,
			TotalDowntime:   int64(down),
			UptimeMinutes:   round2((hourCapacitySeconds - down) / 60),
			DowntimeMinutes: round2(down / 60),
		})
	}
	return out
}

func daily(logs []domain.Incident, startDate time.Time, days int, loc *time.Location) []Bucket {
	out := make([]Bucket, 0, days)
	for i := 0; i < days; i++ {
		dayStart := startDate.AddDate(0, 0, i)
		label := dayStart.Format("2006-01-02")

		var (
			down int64
			n    int
		)
		for j := range logs {
			if logs[j].Start.In(loc).Format("2006-01-02") == label {
				down += logs[j].Duration()
				n++
			}
		}
		downMin := float64(down) / 60
		out = append(out, Bucket{
			Label:           label,
			Incidents:       n,
			TotalDowntime:   down,
			UptimeMinutes:   round2(dayCapacityMinutes - downMin),
			DowntimeMinutes: round2(downMin),
		})
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
