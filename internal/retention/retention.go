package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const DefaultDays = 90

type Result struct {
	Cutoff time.Time `json:"cutoff"`
	Folded int       `json:"folded"`
	Days   int       `json:"days"`
	Kept   int       `json:"kept_open"`
}

// Job folds old incidents into per-day-per-domain totals and deletes them.
// Open incidents are never folded: they still carry a domain's down state.
type Job struct {
	store repo.Store
	days  int
	clock clock.Clock
	log   *zap.Logger
}

func New(store repo.Store, days int, log *zap.Logger) *Job {
	if days <= 0 {
		days = DefaultDays
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{store: store, days: days, clock: clock.Real{}, log: log.Named("retention")}
}

func (j *Job) WithClock(c clock.Clock) *Job {
	j.clock = c
	return j
}

// Run applies the whole fold in one transaction.
func (j *Job) Run(ctx context.Context) (Result, error) {
	cutoff := j.clock.Now().UTC().AddDate(0, 0, -j.days)
	res := Result{Cutoff: cutoff}

	type key struct {
		id  domain.DomainID
		day string
	}

	err := j.store.InTx(ctx, func(tx repo.Tx) error {
		old, err := tx.Incidents(ctx, repo.IncidentQuery{To: cutoff.Add(-time.Nanosecond)})
		if err != nil {
			return err
		}
		stats := map[key]*domain.DailyStat{}
		var order []key
		for _, inc := range old {
			if !inc.Resolved {
				res.Kept++
				continue
			}
			day := inc.Start.UTC().Truncate(24 * time.Hour)
			k := key{inc.DomainID, day.Format("2006-01-02")}
			st, ok := stats[k]
			if !ok {
				st = &domain.DailyStat{DomainID: inc.DomainID, Day: day}
				stats[k] = st
				order = append(order, k)
			}
			st.Incidents++
			st.DowntimeSeconds += inc.Duration()
			if err := tx.DeleteIncident(ctx, inc.ID); err != nil {
				return fmt.Errorf("delete incident %d: %w", inc.ID, err)
			}
			res.Folded++
		}
		for _, k := range order {
			if err := tx.AddDailyStat(ctx, *stats[k]); err != nil {
				return err
			}
		}
		res.Days = len(order)
		return nil
	})
	if err != nil {
		j.log.Error("retention_failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return Result{Cutoff: cutoff}, err
	}

	metrics.AddRetentionFolded(res.Folded)
	j.log.Info("retention_complete",
		zap.Time("cutoff", cutoff),
		zap.Int("folded", res.Folded),
		zap.Int("days", res.Days),
		zap.Int("kept_open", res.Kept),
	)
	return res, nil
}
