package domain

import (
	"strconv"
	"time"
)

// Incident is one continuous outage window for a domain.
type Incident struct {
	ID              int64      `json:"id"`
	DomainID        DomainID   `json:"domain_id"`
	Start           time.Time  `json:"start_time"`
	End             *time.Time `json:"end_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
	Resolved        bool       `json:"resolved"`
}

// Close resolves the incident at end. Duration is floored to whole seconds
// and clamped to zero when end precedes start.
func (i *Incident) Close(end time.Time) {
	d := int64(end.Sub(i.Start) / time.Second)
	if d < 0 {
		d = 0
	}
	i.End = &end
	i.DurationSeconds = &d
	i.Resolved = true
}

// Duration returns the recorded duration, or 0 when unset.
func (i *Incident) Duration() int64 {
	if i.DurationSeconds == nil {
		return 0
	}
	return *i.DurationSeconds
}

// EndOr returns the end timestamp, or now for open incidents.
func (i *Incident) EndOr(now time.Time) time.Time {
	if i.End == nil {
		return now
	}
	return *i.End
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
