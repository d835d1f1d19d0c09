// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/hamed0406/uptimemonitor/internal/config"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Getenv))
}

// run reports on the environment and returns the process exit code.
func run(stdout, stderr io.Writer, getenv func(string) string) int {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	cfg, err := config.Load(getenv("CONFIG_FILE"))
	if err != nil {
		fail(err.Error())
		return 1
	}

	admin := strings.TrimSpace(getenv("ADMIN_API_KEYS"))
	clients := strings.TrimSpace(getenv("API_KEYS"))
	if admin == "" {
		fail("ADMIN_API_KEYS is empty (domain provisioning is open to anyone).")
	}
	if clients == "" {
		fail("API_KEYS is empty (/events accepts unauthenticated signals).")
	}
	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "API_KEYS": clients} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1:Probe A,key2")
		}
	}

	ok("API_ADDR=" + cfg.Addr)

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty: incidents live in memory and are lost on restart.")
	} else if u, err := url.Parse(cfg.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		fail("DATABASE_URL must be a postgres:// URL.")
	} else {
		ok("DATABASE_URL present")
	}

	if cfg.PushGatewayURL == "" {
		warn("PUSH_GATEWAY_URL empty: notifications are counted as failed, nothing is delivered.")
	} else if u, err := url.Parse(cfg.PushGatewayURL); err != nil || u.Host == "" {
		fail("PUSH_GATEWAY_URL is not an absolute URL.")
	} else {
		ok("PUSH_GATEWAY_URL=" + u.Host)
		if cfg.PushGatewayToken == "" {
			warn("PUSH_GATEWAY_TOKEN empty: the gateway will likely reject requests.")
		}
	}

	if cfg.NATSURL != "" {
		ok("NATS ingestion on " + cfg.NATSSubject + " (stream " + cfg.NATSStream + ")")
	}
	if cfg.ProbeInterval > 0 {
		ok("built-in prober every " + cfg.ProbeInterval.String())
	}

	if _, err := cfg.Location(); err != nil {
		fail("ANALYTICS_TZ " + cfg.AnalyticsTZ + " is not a known time zone.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if failed {
		return 1
	}
	ok("preflight passed")
	return 0
}
