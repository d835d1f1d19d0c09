package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/hamed0406/uptimemonitor/internal/clock"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/ratelimit"
)

// RateLimit limits requests per client IP using the sliding-window limiter
// and reports the quota in X-RateLimit-* headers. A nil limiter disables it.
func RateLimit(l *ratelimit.Limiter, c clock.Clock) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if c == nil {
		c = clock.Real{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining := l.Admit(clientIP(r), c.Now())
			SetQuotaHeaders(w, l.Capacity(), remaining, int(l.Window().Seconds()))
			if !ok {
				metrics.IncRateLimited()
				WriteRateLimited(w, int(l.Window().Seconds()), "Too many requests. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SetQuotaHeaders(w http.ResponseWriter, limit, remaining, windowSec int) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Window", strconv.Itoa(windowSec))
}

// WriteRateLimited writes the 429 body shared by the IP and per-domain limits.
func WriteRateLimited(w http.ResponseWriter, retryAfterSec int, msg string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "Rate limit exceeded",
		"message":     msg,
		"retry_after": retryAfterSec,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	// honor X-Forwarded-For if behind a proxy
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
