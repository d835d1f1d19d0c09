package certmon

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const (
	DefaultConcurrency = 4
	DefaultTimeout     = 10 * time.Second
)

// Prober is satisfied by *probe.CertProber.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) (probe.CertResult, error)
}

type Sender interface {
	Send(ctx context.Context, receivers []domain.Receiver, msg notify.Message) notify.Result
}

// Result is the outcome for one domain.
type Result struct {
	DomainID        domain.DomainID `json:"domain_id"`
	Name            string          `json:"domain_name"`
	OK              bool            `json:"success"`
	DaysUntilExpiry *int            `json:"days_until_expiry,omitempty"`
	Severity        string          `json:"severity,omitempty"`
	ExpiresAt       *time.Time      `json:"expiry_date,omitempty"`
	Issuer          string          `json:"issuer,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	Alerted         bool            `json:"notification_sent"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type Report struct {
	Checked int      `json:"checked"`
	OK      int      `json:"ok"`
	Failed  int      `json:"failed"`
	Alerts  int      `json:"alerts"`
	Results []Result `json:"results"`
}

type Monitor struct {
	store       repo.Store
	prober      Prober
	sender      Sender
	clock       clock.Clock
	concurrency int
	timeout     time.Duration
	log         *zap.Logger
}

func New(store repo.Store, prober Prober, sender Sender, concurrency int, timeout time.Duration, log *zap.Logger) *Monitor {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		store:       store,
		prober:      prober,
		sender:      sender,
		clock:       clock.Real{},
		concurrency: concurrency,
		timeout:     timeout,
		log:         log.Named("certmon"),
	}
}

// WithClock replaces the time source used for failure timestamps.
func (m *Monitor) WithClock(c clock.Clock) *Monitor {
	m.clock = c
	return m
}

// RunOnce checks every domain with certificate monitoring enabled. A failing
// domain never stops the sweep; persistence errors are returned together
// once every domain has been tried.
func (m *Monitor) RunOnce(ctx context.Context) (Report, error) {
	all, err := m.store.ListDomains(ctx)
	if err != nil {
		return Report{}, err
	}
	var targets []domain.Domain
	for _, d := range all {
		if d.CertEnabled {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return Report{}, nil
	}

	results := make([]Result, len(targets))
	sem := make(chan struct{}, m.concurrency)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i := range targets {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			res, err := m.check(ctx, &targets[i])
			results[i] = res
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rep := Report{Checked: len(results), Results: results}
	for _, r := range results {
		if r.OK {
			rep.OK++
		} else {
			rep.Failed++
		}
		if r.Alerted {
			rep.Alerts++
		}
	}
	m.log.Info("certmon_sweep_complete",
		zap.Int("checked", rep.Checked),
		zap.Int("ok", rep.OK),
		zap.Int("failed", rep.Failed),
		zap.Int("alerts", rep.Alerts),
		zap.Int("persist_errors", len(multierr.Errors(errs))),
	)
	return rep, errs
}

// CheckOne runs the same check for a single domain regardless of its
// CertEnabled flag.
func (m *Monitor) CheckOne(ctx context.Context, id domain.DomainID) (Result, error) {
	d, err := m.store.GetDomain(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if d == nil {
		return Result{}, domain.ErrNotFound
	}
	return m.check(ctx, d)
}

func (m *Monitor) check(ctx context.Context, d *domain.Domain) (Result, error) {
	res := Result{DomainID: d.ID, Name: d.Name}
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	info, perr := m.prober.Probe(cctx, d.Name, m.timeout)
	cancel()

	if perr != nil {
		checked := m.clock.Now().UTC()
		var ce *probe.CertError
		if errors.As(perr, &ce) {
			res.ErrorKind = ce.Kind
			if !ce.CheckedAt.IsZero() {
				checked = ce.CheckedAt
			}
		}
		res.Error = perr.Error()
		metrics.ObserveCertCheck(metrics.ResultError, "", time.Since(start))
		m.log.Warn("certmon_check_failed",
			zap.String("domain", d.Name),
			zap.String("kind", res.ErrorKind),
			zap.Error(perr),
		)

		snap := d.Cert
		snap.LastChecked = &checked
		snap.DaysUntilExpiry = nil
		if err := m.store.UpdateCert(ctx, d.ID, snap); err != nil {
			return res, m.persistErr(d, err)
		}
		return res, nil
	}

	days := info.DaysUntilExpiry
	expires := info.ExpiresAt
	checked := info.CheckedAt
	issuer, subject := info.Issuer, info.Subject
	res.OK = true
	res.DaysUntilExpiry = &days
	res.ExpiresAt = &expires
	res.Issuer = issuer
	res.Subject = subject
	res.Severity = Severity(days)
	metrics.ObserveCertCheck(metrics.ResultSuccess, res.Severity, time.Since(start))

	snap := domain.CertSnapshot{
		Issuer:          &issuer,
		Subject:         &subject,
		ExpiresAt:       &expires,
		DaysUntilExpiry: &days,
		LastChecked:     &checked,
	}
	if err := m.store.UpdateCert(ctx, d.ID, snap); err != nil {
		return res, m.persistErr(d, err)
	}
	m.log.Debug("certmon_checked",
		zap.String("domain", d.Name),
		zap.Int("days_until_expiry", days),
		zap.String("severity", res.Severity),
	)

	if ShouldAlert(days) {
		res.Alerted = m.alert(ctx, d, info, res.Severity)
	}
	return res, nil
}

func (m *Monitor) persistErr(d *domain.Domain, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		m.log.Info("certmon_domain_gone", zap.String("domain", d.Name))
		return nil
	}
	m.log.Error("certmon_persist_failed", zap.String("domain", d.Name), zap.Error(err))
	return errors.Join(domain.ErrPersistence, err)
}

func (m *Monitor) alert(ctx context.Context, d *domain.Domain, info probe.CertResult, severity string) bool {
	if m.sender == nil {
		return false
	}
	receivers, err := m.store.ListReceivers(ctx)
	if err != nil {
		m.log.Warn("certmon_list_receivers_failed", zap.Error(err))
		return false
	}
	if len(receivers) == 0 {
		return false
	}
	sound := domain.NormalizeSound(d.CustomSoundDown, domain.DefaultSoundDown)
	r := m.sender.Send(ctx, receivers, notify.Message{
		Title:   alertTitle(info.DaysUntilExpiry),
		Body:    alertBody(d.Name, info.DaysUntilExpiry, info.ExpiresAt, info.Issuer),
		Sound:   sound,
		Channel: "default",
		Data: map[string]any{
			"type":              "ssl_expiry",
			"domain_id":         strconv.FormatInt(int64(d.ID), 10),
			"domain_name":       d.Name,
			"days_until_expiry": strconv.Itoa(info.DaysUntilExpiry),
			"severity":          severity,
			"expiry_date":       info.ExpiresAt.Format(time.RFC3339),
		},
	})
	m.log.Info("certmon_alert_sent",
		zap.String("domain", d.Name),
		zap.Int("days_until_expiry", info.DaysUntilExpiry),
		zap.Int("success", r.Success),
		zap.Int("total", r.Total),
	)
	return r.Success > 0
}
