package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func (q *queries) ListReceivers(ctx context.Context) ([]domain.Receiver, error) {
	rows, err := q.db.Query(ctx, `SELECT token, platform, created_at FROM device_tokens ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list receivers: %w", err)
	}
	defer rows.Close()

	var out []domain.Receiver
	for rows.Next() {
		var r domain.Receiver
		if err := rows.Scan(&r.Token, &r.Platform, &r.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) AddReceiver(ctx context.Context, r *domain.Receiver) (bool, error) {
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	tag, err := q.db.Exec(ctx, `
INSERT INTO device_tokens (token, platform, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (token) DO NOTHING`, r.Token, r.Platform, r.RegisteredAt)
	if err != nil {
		return false, fmt.Errorf("add receiver: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) AddDailyStat(ctx context.Context, s domain.DailyStat) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO daily_stats (domain_id, day, total_incidents, total_downtime)
VALUES ($1, $2, $3, $4)
ON CONFLICT (domain_id, day) DO UPDATE SET
  total_incidents = daily_stats.total_incidents + EXCLUDED.total_incidents,
  total_downtime  = daily_stats.total_downtime + EXCLUDED.total_downtime`,
		int64(s.DomainID), s.Day, s.Incidents, s.DowntimeSeconds)
	if err != nil {
		return fmt.Errorf("add daily stat: %w", err)
	}
	return nil
}

func (q *queries) ListDailyStats(ctx context.Context, id domain.DomainID) ([]domain.DailyStat, error) {
	rows, err := q.db.Query(ctx, `
SELECT domain_id, day, total_incidents, total_downtime FROM daily_stats
WHERE $1 = 0 OR domain_id = $1
ORDER BY day, domain_id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyStat
	for rows.Next() {
		var (
			st  domain.DailyStat
			did int64
		)
		if err := rows.Scan(&did, &st.Day, &st.Incidents, &st.DowntimeSeconds); err != nil {
			return nil, err
		}
		st.DomainID = domain.DomainID(did)
		out = append(out, st)
	}
	return out, rows.Err()
}
