package domain

import "time"

type SignalKind string

const (
	SignalDown SignalKind = "down"
	SignalUp   SignalKind = "up"
)

// Signal is an external health observation for a domain.
type Signal struct {
	DomainID   DomainID   `json:"domain_id"`
	DetectedAt time.Time  `json:"detected_at"`
	Kind       SignalKind `json:"kind,omitempty"`
}

// Validate rejects signals that must never reach the tracker.
func (s Signal) Validate() error {
	if s.DomainID <= 0 {
		return &ValidationError{Field: "domain_id", Msg: "must be a positive integer"}
	}
	if s.DetectedAt.IsZero() {
		return &ValidationError{Field: "detected_at", Msg: "required"}
	}
	switch s.Kind {
	case "", SignalDown, SignalUp:
	default:
		return &ValidationError{Field: "kind", Msg: "must be down or up"}
	}
	return nil
}
