package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "uptime_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	signalsTotal       *prometheus.CounterVec
	rateLimitedTotal   prometheus.Counter
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	certChecksTotal    *prometheus.CounterVec
	certCheckLatency   prometheus.Histogram
	analyticsLatency   *prometheus.HistogramVec
	uptimeAnomalies    prometheus.Counter
	retentionFolded    prometheus.Counter
)

// Init registers collectors on the default registry. Safe to call repeatedly.
func Init() {
	registerOnce.Do(func() {
		signalsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "signals_total",
				Help: "Health signals received by kind and result",
			},
			[]string{"kind", "result"},
		)
		rateLimitedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "signals_rate_limited_total",
				Help: "Signals rejected by the per-domain limiter",
			},
		)
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Domain status transitions by direction",
			},
			[]string{"to"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Per-receiver delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		)
		certChecksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cert_checks_total",
				Help: "Certificate probes by result and severity",
			},
			[]string{"result", "severity"},
		)
		certCheckLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cert_check_latency_seconds",
				Help:    "Certificate probe latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		)
		analyticsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analytics_query_latency_seconds",
				Help:    "Analytics query latency by query and result",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query", "result"},
		)
		uptimeAnomalies = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_uptime_anomalies_total",
				Help: "Reports whose downtime exceeded the window (negative uptime)",
			},
		)
		retentionFolded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "retention_folded_incidents_total",
				Help: "Incidents folded into daily stats and deleted",
			},
		)

		prometheus.MustRegister(
			signalsTotal,
			rateLimitedTotal,
			transitionsTotal,
			notificationsTotal,
			certChecksTotal,
			certCheckLatency,
			analyticsLatency,
			uptimeAnomalies,
			retentionFolded,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncSignal(kind, result string) {
	if result == "" {
		result = ResultSuccess
	}
	if signalsTotal != nil {
		signalsTotal.WithLabelValues(kind, result).Inc()
	}
}

func IncRateLimited() {
	if rateLimitedTotal != nil {
		rateLimitedTotal.Inc()
	}
}

func IncTransition(to string) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(to).Inc()
	}
}

func AddNotifications(channel string, success, failed int) {
	if notificationsTotal == nil {
		return
	}
	if channel == "" {
		channel = "default"
	}
	if success > 0 {
		notificationsTotal.WithLabelValues(channel, ResultSuccess).Add(float64(success))
	}
	if failed > 0 {
		notificationsTotal.WithLabelValues(channel, ResultError).Add(float64(failed))
	}
}

func ObserveCertCheck(result, severity string, d time.Duration) {
	if severity == "" {
		severity = "none"
	}
	if certChecksTotal != nil {
		certChecksTotal.WithLabelValues(result, severity).Inc()
	}
	if certCheckLatency != nil {
		certCheckLatency.Observe(d.Seconds())
	}
}

func ObserveAnalytics(query, result string, d time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if analyticsLatency != nil {
		analyticsLatency.WithLabelValues(query, result).Observe(d.Seconds())
	}
}

func IncUptimeAnomaly() {
	if uptimeAnomalies != nil {
		uptimeAnomalies.Inc()
	}
}

func AddRetentionFolded(n int) {
	if retentionFolded != nil && n > 0 {
		retentionFolded.Add(float64(n))
	}
}
