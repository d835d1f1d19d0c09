package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const incidentCols = `id, domain_id, start_time, end_time, duration_seconds, resolved`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc domain.Incident
		id  int64
	)
	if err := row.Scan(&inc.ID, &id, &inc.Start, &inc.End, &inc.DurationSeconds, &inc.Resolved); err != nil {
		return nil, err
	}
	inc.DomainID = domain.DomainID(id)
	return &inc, nil
}

// OpenIncident locks the row when called inside a transaction.
func (q *queries) OpenIncident(ctx context.Context, id domain.DomainID) (*domain.Incident, error) {
	inc, err := scanIncident(q.db.QueryRow(ctx, `
SELECT `+incidentCols+` FROM downtime_logs
WHERE domain_id = $1 AND NOT resolved
ORDER BY start_time
LIMIT 1
FOR UPDATE`, int64(id)))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open incident for %d: %w", id, err)
	}
	return inc, nil
}

func (q *queries) UpsertIncident(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == 0 {
		err := q.db.QueryRow(ctx, `
INSERT INTO downtime_logs (domain_id, start_time, end_time, duration_seconds, resolved)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, int64(inc.DomainID), inc.Start, inc.End, inc.DurationSeconds, inc.Resolved).Scan(&inc.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("open incident for %d: %w", inc.DomainID, domain.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert incident: %w", err)
		}
		return nil
	}

	tag, err := q.db.Exec(ctx, `
UPDATE downtime_logs
SET domain_id = $2, start_time = $3, end_time = $4, duration_seconds = $5, resolved = $6
WHERE id = $1`, inc.ID, int64(inc.DomainID), inc.Start, inc.End, inc.DurationSeconds, inc.Resolved)
	if err != nil {
		return fmt.Errorf("update incident %d: %w", inc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %d: %w", inc.ID, domain.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteIncident(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM downtime_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) Incidents(ctx context.Context, iq repo.IncidentQuery) ([]domain.Incident, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if iq.DomainID != 0 {
		add("domain_id = ?", int64(iq.DomainID))
	}
	if !iq.From.IsZero() {
		add("start_time >= ?", iq.From)
	}
	if !iq.To.IsZero() {
		add("start_time <= ?", iq.To)
	}

	sql := `SELECT ` + incidentCols + ` FROM downtime_logs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY start_time, id"

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}
