package domain

import "time"

type DomainID int64

// Domain is a monitored target. Name is unique across the store.
type Domain struct {
	ID                 DomainID     `json:"id"`
	Name               string       `json:"name"`
	Label              *string      `json:"label"`
	IsUp               bool         `json:"is_active"`
	SensitivitySeconds int          `json:"sensitivity"`
	CustomSoundDown    *string      `json:"custom_sound_down"`
	CustomSoundUp      *string      `json:"custom_sound_up"`
	CertEnabled        bool         `json:"ssl_enabled"`
	Cert               CertSnapshot `json:"ssl"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Settings are the operator-editable fields of a Domain. Status and the
// certificate snapshot are owned by the tracker and the cert monitor.
type Settings struct {
	Name               string
	Label              *string
	SensitivitySeconds int
	CustomSoundDown    *string
	CustomSoundUp      *string
	CertEnabled        bool
}

func (d *Domain) Settings() Settings {
	return Settings{
		Name:               d.Name,
		Label:              d.Label,
		SensitivitySeconds: d.SensitivitySeconds,
		CustomSoundDown:    d.CustomSoundDown,
		CustomSoundUp:      d.CustomSoundUp,
		CertEnabled:        d.CertEnabled,
	}
}

// CertSnapshot is the last-known certificate state for a domain.
type CertSnapshot struct {
	Issuer          *string    `json:"issuer"`
	Subject         *string    `json:"subject"`
	ExpiresAt       *time.Time `json:"expiry_date"`
	DaysUntilExpiry *int       `json:"days_until_expiry"`
	LastChecked     *time.Time `json:"last_checked"`
}

// DisplayName falls back to "Domain #<id>" so signals for unprovisioned
// identities still render.
func DisplayName(d *Domain, id DomainID) string {
	if d == nil {
		return "Domain #" + itoa(int64(id))
	}
	return d.Name
}

// DisplayLabel prefers the human label, then the name.
func DisplayLabel(d *Domain, id DomainID) string {
	if d != nil && d.Label != nil && *d.Label != "" {
		return *d.Label
	}
	return DisplayName(d, id)
}

func (d *Domain) Status() string {
	if d.IsUp {
		return "up"
	}
	return "down"
}

// Receiver is a registered push-notification device.
type Receiver struct {
	Token        string    `json:"token"`
	Platform     string    `json:"platform"`
	RegisteredAt time.Time `json:"created_at"`
}

// DailyStat is the per-day-per-domain fold written by the retention job.
type DailyStat struct {
	DomainID        DomainID  `json:"domain_id"`
	Day             time.Time `json:"date"`
	Incidents       int       `json:"total_incidents"`
	DowntimeSeconds int64     `json:"total_downtime"`
}
