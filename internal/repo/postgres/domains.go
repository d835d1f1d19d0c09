package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const domainCols = `id, name, label, is_active, sensitivity, custom_sound_down, custom_sound_up,
  ssl_enabled, ssl_expiry_date, ssl_issuer, ssl_subject, ssl_days_until_expiry, ssl_last_checked,
  created_at, updated_at`

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var (
		d    domain.Domain
		id   int64
		sens int
	)
	err := row.Scan(&id, &d.Name, &d.Label, &d.IsUp, &sens, &d.CustomSoundDown, &d.CustomSoundUp,
		&d.CertEnabled, &d.Cert.ExpiresAt, &d.Cert.Issuer, &d.Cert.Subject, &d.Cert.DaysUntilExpiry,
		&d.Cert.LastChecked, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = domain.DomainID(id)
	d.SensitivitySeconds = sens
	return &d, nil
}

func (q *queries) GetDomain(ctx context.Context, id domain.DomainID) (*domain.Domain, error) {
	d, err := scanDomain(q.db.QueryRow(ctx, `SELECT `+domainCols+` FROM domains WHERE id = $1`, int64(id)))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %d: %w", id, err)
	}
	return d, nil
}

func (q *queries) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	d, err := scanDomain(q.db.QueryRow(ctx, `SELECT `+domainCols+` FROM domains WHERE name = $1`, name))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %q: %w", name, err)
	}
	return d, nil
}

func (q *queries) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	rows, err := q.db.Query(ctx, `SELECT `+domainCols+` FROM domains ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (q *queries) UpsertDomain(ctx context.Context, d *domain.Domain) error {
	args := []any{d.Name, d.Label, d.IsUp, d.SensitivitySeconds, d.CustomSoundDown, d.CustomSoundUp,
		d.CertEnabled, d.Cert.ExpiresAt, d.Cert.Issuer, d.Cert.Subject, d.Cert.DaysUntilExpiry, d.Cert.LastChecked}

	var (
		row pgx.Row
		id  int64
	)
	if d.ID == 0 {
		row = q.db.QueryRow(ctx, `
INSERT INTO domains (name, label, is_active, sensitivity, custom_sound_down, custom_sound_up,
  ssl_enabled, ssl_expiry_date, ssl_issuer, ssl_subject, ssl_days_until_expiry, ssl_last_checked)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`, args...)
	} else {
		row = q.db.QueryRow(ctx, `
INSERT INTO domains (name, label, is_active, sensitivity, custom_sound_down, custom_sound_up,
  ssl_enabled, ssl_expiry_date, ssl_issuer, ssl_subject, ssl_days_until_expiry, ssl_last_checked, id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, label = EXCLUDED.label, is_active = EXCLUDED.is_active,
  sensitivity = EXCLUDED.sensitivity, custom_sound_down = EXCLUDED.custom_sound_down,
  custom_sound_up = EXCLUDED.custom_sound_up, ssl_enabled = EXCLUDED.ssl_enabled,
  ssl_expiry_date = EXCLUDED.ssl_expiry_date, ssl_issuer = EXCLUDED.ssl_issuer,
  ssl_subject = EXCLUDED.ssl_subject, ssl_days_until_expiry = EXCLUDED.ssl_days_until_expiry,
  ssl_last_checked = EXCLUDED.ssl_last_checked, updated_at = now()
RETURNING id, created_at, updated_at`, append(args, int64(d.ID))...)
	}
	if err := row.Scan(&id, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("domain %q: %w", d.Name, domain.ErrConflict)
		}
		return fmt.Errorf("upsert domain %q: %w", d.Name, err)
	}
	d.ID = domain.DomainID(id)
	return nil
}

func (q *queries) DeleteDomain(ctx context.Context, id domain.DomainID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM domains WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete domain %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) UpdateCert(ctx context.Context, id domain.DomainID, c domain.CertSnapshot) error {
	tag, err := q.db.Exec(ctx, `
UPDATE domains SET
  ssl_expiry_date = $2, ssl_issuer = $3, ssl_subject = $4,
  ssl_days_until_expiry = $5, ssl_last_checked = $6, updated_at = now()
WHERE id = $1`, int64(id), c.ExpiresAt, c.Issuer, c.Subject, c.DaysUntilExpiry, c.LastChecked)
	if err != nil {
		return fmt.Errorf("update cert for domain %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) UpdateSettings(ctx context.Context, id domain.DomainID, st domain.Settings) error {
	tag, err := q.db.Exec(ctx, `
UPDATE domains SET
  name = $2, label = $3, sensitivity = $4, custom_sound_down = $5,
  custom_sound_up = $6, ssl_enabled = $7, updated_at = now()
WHERE id = $1`, int64(id), st.Name, st.Label, st.SensitivitySeconds, st.CustomSoundDown,
		st.CustomSoundUp, st.CertEnabled)
	if isUniqueViolation(err) {
		return fmt.Errorf("domain %q: %w", st.Name, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update settings for domain %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) SetStatus(ctx context.Context, id domain.DomainID, isUp bool) error {
	tag, err := q.db.Exec(ctx, `UPDATE domains SET is_active = $2, updated_at = now() WHERE id = $1`, int64(id), isUp)
	if err != nil {
		return fmt.Errorf("set status for domain %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
