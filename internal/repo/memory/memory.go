package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// Store keeps everything in process memory. InTx works on a copy of the
// state and swaps it in on success, so a failed callback leaves no trace.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	domains      map[domain.DomainID]domain.Domain
	incidents    map[int64]domain.Incident
	receivers    map[string]domain.Receiver
	stats        map[statKey]domain.DailyStat
	nextDomain   domain.DomainID
	nextIncident int64
}

type statKey struct {
	id  domain.DomainID
	day string
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		domains:   make(map[domain.DomainID]domain.Domain),
		incidents: make(map[int64]domain.Incident),
		receivers: make(map[string]domain.Receiver),
		stats:     make(map[statKey]domain.DailyStat),
	}}
}

func (m *Store) InTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (s *state) clone() *state {
	c := &state{
		domains:      make(map[domain.DomainID]domain.Domain, len(s.domains)),
		incidents:    make(map[int64]domain.Incident, len(s.incidents)),
		receivers:    make(map[string]domain.Receiver, len(s.receivers)),
		stats:        make(map[statKey]domain.DailyStat, len(s.stats)),
		nextDomain:   s.nextDomain,
		nextIncident: s.nextIncident,
	}
	for k, v := range s.domains {
		c.domains[k] = v
	}
	for k, v := range s.incidents {
		c.incidents[k] = v
	}
	for k, v := range s.receivers {
		c.receivers[k] = v
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	return c
}

// ---- auto-commit wrappers ----

func (m *Store) GetDomain(ctx context.Context, id domain.DomainID) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetDomain(ctx, id)
}

func (m *Store) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetDomainByName(ctx, name)
}

func (m *Store) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListDomains(ctx)
}

func (m *Store) UpsertDomain(ctx context.Context, d *domain.Domain) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.UpsertDomain(ctx, d) })
}

func (m *Store) DeleteDomain(ctx context.Context, id domain.DomainID) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.DeleteDomain(ctx, id) })
}

func (m *Store) UpdateCert(ctx context.Context, id domain.DomainID, c domain.CertSnapshot) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.UpdateCert(ctx, id, c) })
}

func (m *Store) UpdateSettings(ctx context.Context, id domain.DomainID, st domain.Settings) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.UpdateSettings(ctx, id, st) })
}

func (m *Store) SetStatus(ctx context.Context, id domain.DomainID, isUp bool) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.SetStatus(ctx, id, isUp) })
}

func (m *Store) OpenIncident(ctx context.Context, id domain.DomainID) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.OpenIncident(ctx, id)
}

func (m *Store) UpsertIncident(ctx context.Context, inc *domain.Incident) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.UpsertIncident(ctx, inc) })
}

func (m *Store) DeleteIncident(ctx context.Context, id int64) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.DeleteIncident(ctx, id) })
}

func (m *Store) Incidents(ctx context.Context, q repo.IncidentQuery) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Incidents(ctx, q)
}

func (m *Store) ListReceivers(ctx context.Context) ([]domain.Receiver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListReceivers(ctx)
}

func (m *Store) AddReceiver(ctx context.Context, r *domain.Receiver) (bool, error) {
	var created bool
	err := m.InTx(ctx, func(tx repo.Tx) error {
		var err error
		created, err = tx.AddReceiver(ctx, r)
		return err
	})
	return created, err
}

func (m *Store) AddDailyStat(ctx context.Context, s domain.DailyStat) error {
	return m.InTx(ctx, func(tx repo.Tx) error { return tx.AddDailyStat(ctx, s) })
}

func (m *Store) ListDailyStats(ctx context.Context, id domain.DomainID) ([]domain.DailyStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListDailyStats(ctx, id)
}

// ---- state: the unlocked Tx implementation ----

func (s *state) GetDomain(_ context.Context, id domain.DomainID) (*domain.Domain, error) {
	d, ok := s.domains[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *state) GetDomainByName(_ context.Context, name string) (*domain.Domain, error) {
	for _, d := range s.domains {
		if d.Name == name {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (s *state) ListDomains(_ context.Context) ([]domain.Domain, error) {
	out := make([]domain.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) UpsertDomain(_ context.Context, d *domain.Domain) error {
	for id, other := range s.domains {
		if other.Name == d.Name && id != d.ID {
			return fmt.Errorf("domain %q: %w", d.Name, domain.ErrConflict)
		}
	}
	now := time.Now().UTC()
	if d.ID == 0 {
		s.nextDomain++
		d.ID = s.nextDomain
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
	} else if _, ok := s.domains[d.ID]; !ok {
		// explicit ids are accepted (provisioning by id); keep the sequence ahead
		if d.ID > s.nextDomain {
			s.nextDomain = d.ID
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
	}
	d.UpdatedAt = now
	s.domains[d.ID] = *d
	return nil
}

func (s *state) DeleteDomain(_ context.Context, id domain.DomainID) error {
	if _, ok := s.domains[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.domains, id)
	return nil
}

func (s *state) UpdateCert(_ context.Context, id domain.DomainID, c domain.CertSnapshot) error {
	d, ok := s.domains[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Cert = c
	d.UpdatedAt = time.Now().UTC()
	s.domains[id] = d
	return nil
}

func (s *state) UpdateSettings(_ context.Context, id domain.DomainID, st domain.Settings) error {
	d, ok := s.domains[id]
	if !ok {
		return domain.ErrNotFound
	}
	for other, od := range s.domains {
		if od.Name == st.Name && other != id {
			return fmt.Errorf("domain %q: %w", st.Name, domain.ErrConflict)
		}
	}
	d.Name = st.Name
	d.Label = st.Label
	d.SensitivitySeconds = st.SensitivitySeconds
	d.CustomSoundDown = st.CustomSoundDown
	d.CustomSoundUp = st.CustomSoundUp
	d.CertEnabled = st.CertEnabled
	d.UpdatedAt = time.Now().UTC()
	s.domains[id] = d
	return nil
}

func (s *state) SetStatus(_ context.Context, id domain.DomainID, isUp bool) error {
	d, ok := s.domains[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.IsUp = isUp
	d.UpdatedAt = time.Now().UTC()
	s.domains[id] = d
	return nil
}

func (s *state) OpenIncident(_ context.Context, id domain.DomainID) (*domain.Incident, error) {
	var found *domain.Incident
	for _, inc := range s.incidents {
		if inc.DomainID == id && !inc.Resolved {
			inc := inc
			if found == nil || inc.Start.Before(found.Start) {
				found = &inc
			}
		}
	}
	return found, nil
}

func (s *state) UpsertIncident(_ context.Context, inc *domain.Incident) error {
	if inc.ID == 0 {
		s.nextIncident++
		inc.ID = s.nextIncident
	} else if _, ok := s.incidents[inc.ID]; !ok {
		return fmt.Errorf("incident %d: %w", inc.ID, domain.ErrNotFound)
	}
	s.incidents[inc.ID] = *inc
	return nil
}

func (s *state) DeleteIncident(_ context.Context, id int64) error {
	if _, ok := s.incidents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}

func (s *state) Incidents(_ context.Context, q repo.IncidentQuery) ([]domain.Incident, error) {
	var out []domain.Incident
	for _, inc := range s.incidents {
		if q.DomainID != 0 && inc.DomainID != q.DomainID {
			continue
		}
		if !q.From.IsZero() && inc.Start.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && inc.Start.After(q.To) {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *state) ListReceivers(_ context.Context) ([]domain.Receiver, error) {
	out := make([]domain.Receiver, 0, len(s.receivers))
	for _, r := range s.receivers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *state) AddReceiver(_ context.Context, r *domain.Receiver) (bool, error) {
	if _, ok := s.receivers[r.Token]; ok {
		return false, nil
	}
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	s.receivers[r.Token] = *r
	return true, nil
}

func (s *state) AddDailyStat(_ context.Context, st domain.DailyStat) error {
	k := statKey{id: st.DomainID, day: st.Day.Format("2006-01-02")}
	cur, ok := s.stats[k]
	if !ok {
		s.stats[k] = st
		return nil
	}
	cur.Incidents += st.Incidents
	cur.DowntimeSeconds += st.DowntimeSeconds
	s.stats[k] = cur
	return nil
}

func (s *state) ListDailyStats(_ context.Context, id domain.DomainID) ([]domain.DailyStat, error) {
	var out []domain.DailyStat
	for _, st := range s.stats {
		if id == 0 || st.DomainID == id {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day.Equal(out[j].Day) {
			return out[i].DomainID < out[j].DomainID
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out, nil
}
