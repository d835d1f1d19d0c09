package repo

import (
	"context"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Ports (interfaces): memory and postgres adapters implement them.
// Getters return nil, nil when the record does not exist.

type DomainStore interface {
	GetDomain(ctx context.Context, id domain.DomainID) (*domain.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*domain.Domain, error)
	ListDomains(ctx context.Context) ([]domain.Domain, error)
	// UpsertDomain inserts when d.ID is zero (and assigns it), else updates.
	UpsertDomain(ctx context.Context, d *domain.Domain) error
	DeleteDomain(ctx context.Context, id domain.DomainID) error
	// UpdateCert replaces only the certificate snapshot, leaving status and
	// settings untouched.
	UpdateCert(ctx context.Context, id domain.DomainID, c domain.CertSnapshot) error
	// UpdateSettings replaces only the operator-editable fields.
	UpdateSettings(ctx context.Context, id domain.DomainID, s domain.Settings) error
	// SetStatus writes only the up/down flag.
	SetStatus(ctx context.Context, id domain.DomainID, isUp bool) error
}

// IncidentQuery filters incidents by domain (zero means all domains) and a
// start-time range. Zero From/To leave that side open; To is inclusive.
type IncidentQuery struct {
	DomainID domain.DomainID
	From     time.Time
	To       time.Time
}

type IncidentStore interface {
	OpenIncident(ctx context.Context, id domain.DomainID) (*domain.Incident, error)
	// UpsertIncident inserts when inc.ID is zero (and assigns it), else updates.
	UpsertIncident(ctx context.Context, inc *domain.Incident) error
	DeleteIncident(ctx context.Context, id int64) error
	// Incidents returns matches ordered by start ascending.
	Incidents(ctx context.Context, q IncidentQuery) ([]domain.Incident, error)
}

type ReceiverStore interface {
	ListReceivers(ctx context.Context) ([]domain.Receiver, error)
	// AddReceiver reports created=false when the token is already registered.
	AddReceiver(ctx context.Context, r *domain.Receiver) (created bool, err error)
}

type DailyStatStore interface {
	// AddDailyStat adds the counts onto any existing row for the same day.
	AddDailyStat(ctx context.Context, s domain.DailyStat) error
	ListDailyStats(ctx context.Context, id domain.DomainID) ([]domain.DailyStat, error)
}

// Tx is the unit of work handed to Store.InTx callbacks.
type Tx interface {
	DomainStore
	IncidentStore
	ReceiverStore
	DailyStatStore
}

// Store runs single operations in their own transaction, or groups them
// with InTx: fn's writes commit together when it returns nil and are
// discarded otherwise.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
