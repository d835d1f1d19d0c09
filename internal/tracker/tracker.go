package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const (
	ChannelDown = "downtime_v3"
	ChannelUp   = "uptime_v3"
)

// Sender is the fan-out dependency; *notify.Fanout satisfies it.
type Sender interface {
	Send(ctx context.Context, receivers []domain.Receiver, msg notify.Message) notify.Result
}

// Outcome reports what a signal did.
type Outcome struct {
	Message          string        `json:"message"`
	StatusChanged    bool          `json:"status_changed"`
	NoActiveIncident bool          `json:"-"`
	Duration         *int64        `json:"duration,omitempty"`
	Notifications    notify.Result `json:"notifications"`
}

// Tracker turns down/up signals into incidents, domain status changes and
// notifications. Transitions for the same domain never interleave.
type Tracker struct {
	store  repo.Store
	sender Sender
	locks  keyedMutex
	log    *zap.Logger
}

func New(store repo.Store, sender Sender, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: store, sender: sender, log: log.Named("tracker")}
}

func (t *Tracker) Down(ctx context.Context, sig domain.Signal) (Outcome, error) {
	if err := sig.Validate(); err != nil {
		return Outcome{}, err
	}
	id := sig.DomainID

	var (
		d       *domain.Domain
		changed bool
	)
	unlock := t.locks.lock(id)
	err := t.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		if d, err = tx.GetDomain(ctx, id); err != nil {
			return err
		}
		open, err := tx.OpenIncident(ctx, id)
		if err != nil {
			return err
		}
		if open != nil || (d != nil && !d.IsUp) {
			return nil
		}
		if err := tx.UpsertIncident(ctx, &domain.Incident{DomainID: id, Start: sig.DetectedAt}); err != nil {
			return err
		}
		if d != nil {
			d.IsUp = false
			if err := tx.SetStatus(ctx, id, false); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	unlock()
	if err != nil {
		t.log.Error("tracker_down_failed", zap.Int64("domain_id", int64(id)), zap.Error(err))
		return Outcome{}, fmt.Errorf("record down for domain %d: %w: %w", id, domain.ErrPersistence, err)
	}

	name := domain.DisplayName(d, id)
	if !changed {
		t.log.Info("tracker_down_skipped", zap.String("domain", name))
		return Outcome{Message: "Domain already down, no action taken"}, nil
	}
	metrics.IncTransition(string(domain.SignalDown))

	label := domain.DisplayLabel(d, id)
	var custom *string
	if d != nil {
		custom = d.CustomSoundDown
	}
	sound := domain.NormalizeSound(custom, domain.DefaultSoundDown)

	res := t.fanout(ctx, notify.Message{
		Title:   "🔴 " + name + " DOWN",
		Body:    label + " (" + name + ") is currently unreachable",
		Sound:   sound,
		Channel: ChannelDown,
		Data: map[string]any{
			"type":         "down",
			"domain_name":  name,
			"domain_label": label,
			"sound":        sound,
			"timestamp":    sig.DetectedAt.Format(time.RFC3339),
		},
	})
	t.log.Info("tracker_down_recorded",
		zap.String("domain", name),
		zap.Time("detected_at", sig.DetectedAt),
		zap.Int("notified", res.Success),
		zap.Int("receivers", res.Total),
	)
	return Outcome{Message: "Down recorded", StatusChanged: true, Notifications: res}, nil
}

func (t *Tracker) Up(ctx context.Context, sig domain.Signal) (Outcome, error) {
	if err := sig.Validate(); err != nil {
		return Outcome{}, err
	}
	id := sig.DomainID

	var (
		d       *domain.Domain
		inc     *domain.Incident
		wasDown bool
	)
	unlock := t.locks.lock(id)
	err := t.store.InTx(ctx, func(tx repo.Tx) error {
		var err error
		if d, err = tx.GetDomain(ctx, id); err != nil {
			return err
		}
		wasDown = d != nil && !d.IsUp
		if inc, err = tx.OpenIncident(ctx, id); err != nil {
			return err
		}
		if inc != nil {
			inc.Close(sig.DetectedAt)
			if err := tx.UpsertIncident(ctx, inc); err != nil {
				return err
			}
		}
		if wasDown {
			d.IsUp = true
			return tx.SetStatus(ctx, id, true)
		}
		return nil
	})
	unlock()
	if err != nil {
		t.log.Error("tracker_up_failed", zap.Int64("domain_id", int64(id)), zap.Error(err))
		return Outcome{}, fmt.Errorf("record up for domain %d: %w: %w", id, domain.ErrPersistence, err)
	}

	name := domain.DisplayName(d, id)
	if inc == nil {
		t.log.Info("tracker_up_no_active_incident", zap.String("domain", name), zap.Bool("status_flipped", wasDown))
		return Outcome{Message: "No active downtime log", NoActiveIncident: true}, nil
	}

	dur := inc.Duration()
	out := Outcome{Message: "Up updated", StatusChanged: wasDown, Duration: &dur}
	if wasDown {
		metrics.IncTransition(string(domain.SignalUp))
	}
	if !wasDown || dur <= 0 {
		t.log.Info("tracker_up_notification_skipped", zap.String("domain", name), zap.Bool("was_down", wasDown), zap.Int64("duration", dur))
		return out, nil
	}

	label := domain.DisplayLabel(d, id)
	sound := domain.NormalizeSound(d.CustomSoundUp, domain.DefaultSoundUp)
	text := FormatDuration(dur)

	out.Notifications = t.fanout(ctx, notify.Message{
		Title:   "✅ " + name + " RECOVERED",
		Body:    label + " (" + name + ") is back online after " + text,
		Sound:   sound,
		Channel: ChannelUp,
		Data: map[string]any{
			"type":               "up",
			"domain_name":        name,
			"domain_label":       label,
			"duration":           strconv.FormatInt(dur, 10),
			"duration_formatted": text,
			"sound":              sound,
			"timestamp":          sig.DetectedAt.Format(time.RFC3339),
		},
	})
	t.log.Info("tracker_up_recorded",
		zap.String("domain", name),
		zap.Int64("duration", dur),
		zap.Int("notified", out.Notifications.Success),
		zap.Int("receivers", out.Notifications.Total),
	)
	return out, nil
}

// fanout loads the current receiver set for every call so new registrations
// are picked up immediately.
func (t *Tracker) fanout(ctx context.Context, msg notify.Message) notify.Result {
	if t.sender == nil {
		return notify.Result{}
	}
	receivers, err := t.store.ListReceivers(ctx)
	if err != nil {
		t.log.Warn("tracker_list_receivers_failed", zap.Error(err))
		return notify.Result{}
	}
	return t.sender.Send(ctx, receivers, msg)
}

// FormatDuration renders seconds as "45s", "1m 30s" or "1h 1m".
func FormatDuration(sec int64) string {
	switch {
	case sec < 60:
		return fmt.Sprintf("%ds", sec)
	case sec < 3600:
		return fmt.Sprintf("%dm %ds", sec/60, sec%60)
	default:
		return fmt.Sprintf("%dh %dm", sec/3600, (sec%3600)/60)
	}
}
