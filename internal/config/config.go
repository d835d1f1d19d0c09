package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Addr           string            `toml:"addr"`     // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir         string            `toml:"log_dir"`  // logs directory
	LogLevel       string            `toml:"log_level"` // debug|info|warn|error
	LogStdout      bool              `toml:"log_stdout"`
	DatabaseURL    string            `toml:"database_url"` // empty means in-memory store
	APIKeys        map[string]string `toml:"api_keys"`     // key -> client name, guards /events
	AdminAPIKeys   []string          `toml:"admin_api_keys"`
	AllowedOrigins []string          `toml:"allowed_origins"`

	RateLimitRequests int           `toml:"rate_limit_requests"` // per domain per window on /events
	RateLimitWindow   time.Duration `toml:"-"`
	HTTPRateLimit     int           `toml:"http_rate_limit"` // per client IP per window; 0 disables

	PushGatewayURL   string        `toml:"push_gateway_url"`
	PushGatewayToken string        `toml:"push_gateway_token"`
	PushTimeout      time.Duration `toml:"-"`
	FanoutWorkers    int           `toml:"fanout_workers"`

	CertCheckInterval    time.Duration `toml:"-"`
	CertCheckTimeout     time.Duration `toml:"-"`
	CertCheckConcurrency int           `toml:"cert_check_concurrency"`

	RetentionHour int `toml:"retention_hour"` // local hour of the daily fold
	RetentionDays int `toml:"retention_days"`

	ProbeInterval       time.Duration `toml:"-"` // 0 disables the built-in prober
	ProbeTimeout        time.Duration `toml:"-"`
	RetryAttempts       int           `toml:"retry_attempts"`
	RetryBackoff        time.Duration `toml:"-"`
	MaxConcurrentChecks int           `toml:"max_concurrent_checks"`

	NATSURL      string `toml:"nats_url"` // empty disables NATS ingestion
	NATSSubject  string `toml:"nats_subject"`
	NATSStream   string `toml:"nats_stream"`
	NATSConsumer string `toml:"nats_consumer"`

	AnalyticsTZ     string `toml:"analytics_tz"`
	MTBFScaleWindow bool   `toml:"mtbf_scale_window"`
}

// durations in the TOML file are written in the same units as the env keys
type fileDurations struct {
	RateLimitWindowSec   *int `toml:"rate_limit_window_sec"`
	PushTimeoutMS        *int `toml:"push_timeout_ms"`
	CertCheckIntervalMin *int `toml:"cert_check_interval_min"`
	CertCheckTimeoutMS   *int `toml:"cert_check_timeout_ms"`
	ProbeIntervalMS      *int `toml:"probe_interval_ms"`
	ProbeTimeoutMS       *int `toml:"probe_timeout_ms"`
	RetryBackoffMS       *int `toml:"retry_backoff_ms"`
}

func Defaults() Config {
	return Config{
		Addr:                 "127.0.0.1:8080",
		LogDir:               "logs",
		LogLevel:             "info",
		RateLimitRequests:    400,
		RateLimitWindow:      60 * time.Second,
		HTTPRateLimit:        1200,
		PushTimeout:          10 * time.Second,
		FanoutWorkers:        8,
		CertCheckInterval:    6 * time.Hour,
		CertCheckTimeout:     10 * time.Second,
		CertCheckConcurrency: 4,
		RetentionHour:        3,
		RetentionDays:        90,
		ProbeTimeout:         10 * time.Second,
		RetryAttempts:        2,
		RetryBackoff:         300 * time.Millisecond,
		MaxConcurrentChecks:  4,
		NATSSubject:          "uptime.signals",
		NATSStream:           "UPTIME_SIGNALS",
		NATSConsumer:         "uptime-ingest",
	}
}

// FromEnv returns defaults overridden by environment variables.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load applies defaults, then the TOML file at path (if any), then env.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := toml.Unmarshal(body, cfg); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}
	var d fileDurations
	if err := toml.Unmarshal(body, &d); err != nil {
		return fmt.Errorf("decode durations %q: %w", path, err)
	}
	setDur(&cfg.RateLimitWindow, d.RateLimitWindowSec, time.Second)
	setDur(&cfg.PushTimeout, d.PushTimeoutMS, time.Millisecond)
	setDur(&cfg.CertCheckInterval, d.CertCheckIntervalMin, time.Minute)
	setDur(&cfg.CertCheckTimeout, d.CertCheckTimeoutMS, time.Millisecond)
	setDur(&cfg.ProbeInterval, d.ProbeIntervalMS, time.Millisecond)
	setDur(&cfg.ProbeTimeout, d.ProbeTimeoutMS, time.Millisecond)
	setDur(&cfg.RetryBackoff, d.RetryBackoffMS, time.Millisecond)
	return nil
}

func setDur(dst *time.Duration, v *int, unit time.Duration) {
	if v != nil && *v >= 0 {
		*dst = time.Duration(*v) * unit
	}
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("API_ADDR", &cfg.Addr)
	str("LOG_DIR", &cfg.LogDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("PUSH_GATEWAY_URL", &cfg.PushGatewayURL)
	str("PUSH_GATEWAY_TOKEN", &cfg.PushGatewayToken)
	str("NATS_URL", &cfg.NATSURL)
	str("NATS_SUBJECT", &cfg.NATSSubject)
	str("NATS_STREAM", &cfg.NATSStream)
	str("NATS_CONSUMER", &cfg.NATSConsumer)
	str("ANALYTICS_TZ", &cfg.AnalyticsTZ)

	if v := os.Getenv("LOG_STDOUT"); v != "" {
		cfg.LogStdout, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("MTBF_SCALE_WINDOW"); v != "" {
		cfg.MTBFScaleWindow, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.APIKeys = parseKeyNames(v)
	}
	if v := os.Getenv("ADMIN_API_KEYS"); v != "" {
		cfg.AdminAPIKeys = splitList(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	positive := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	positive("RATE_LIMIT_REQUESTS", &cfg.RateLimitRequests)
	positive("FANOUT_WORKERS", &cfg.FanoutWorkers)
	positive("CERT_CHECK_CONCURRENCY", &cfg.CertCheckConcurrency)
	positive("RETENTION_DAYS", &cfg.RetentionDays)
	positive("RETRY_ATTEMPTS", &cfg.RetryAttempts)
	positive("MAX_CONCURRENT_CHECKS", &cfg.MaxConcurrentChecks)
	if v := os.Getenv("HTTP_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.HTTPRateLimit = n
		}
	}
	if v := os.Getenv("RETENTION_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < 24 {
			cfg.RetentionHour = n
		}
	}

	dur := func(key string, unit time.Duration, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = time.Duration(n) * unit
			}
		}
	}
	dur("RATE_LIMIT_WINDOW_SEC", time.Second, &cfg.RateLimitWindow)
	dur("PUSH_TIMEOUT_MS", time.Millisecond, &cfg.PushTimeout)
	dur("CERT_CHECK_INTERVAL_MIN", time.Minute, &cfg.CertCheckInterval)
	dur("CERT_CHECK_TIMEOUT_MS", time.Millisecond, &cfg.CertCheckTimeout)
	dur("PROBE_INTERVAL_MS", time.Millisecond, &cfg.ProbeInterval)
	dur("PROBE_TIMEOUT_MS", time.Millisecond, &cfg.ProbeTimeout)
	dur("RETRY_BACKOFF_MS", time.Millisecond, &cfg.RetryBackoff)
}

// Location resolves AnalyticsTZ, defaulting to the process local zone.
func (c Config) Location() (*time.Location, error) {
	if c.AnalyticsTZ == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.AnalyticsTZ)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseKeyNames reads "key1:Client A,key2" into key -> name. Unnamed keys get
// "Client N" like the numbered API_KEY_N variables did.
func parseKeyNames(v string) map[string]string {
	out := make(map[string]string)
	for i, p := range splitList(v) {
		key, name, ok := strings.Cut(p, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !ok || strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Client %d", i+1)
		}
		out[key] = strings.TrimSpace(name)
	}
	return out
}
