package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Keys maps client API keys to display names; Admin keys may provision.
type Keys struct {
	Clients map[string]string
	Admin   []string
}

type clientKey struct{}

// clientSlot is installed by RequestLog so the outer log line can report
// the client the auth middleware resolved further down the chain.
type clientSlot struct{ name string }

func withClientSlot(ctx context.Context) (context.Context, *clientSlot) {
	if s, ok := ctx.Value(clientKey{}).(*clientSlot); ok {
		return ctx, s
	}
	s := &clientSlot{name: "anonymous"}
	return context.WithValue(ctx, clientKey{}, s), s
}

// ClientName returns the authenticated client's name, or "anonymous".
func ClientName(ctx context.Context) string {
	if s, ok := ctx.Value(clientKey{}).(*clientSlot); ok {
		return s.name
	}
	return "anonymous"
}

func setClient(r *http.Request, name string) *http.Request {
	ctx, s := withClientSlot(r.Context())
	s.name = name
	return r.WithContext(ctx)
}

func readAuth(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	for _, k := range set {
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			return true
		}
	}
	return false
}

func (k Keys) client(given string) (string, bool) {
	if given == "" {
		return "", false
	}
	if name, ok := k.Clients[given]; ok {
		return name, true
	}
	if hasKey(given, k.Admin) {
		return "admin", true
	}
	return "", false
}

// RequireClient allows requests that present a client or admin key and
// records the client's name on the request context.
// If no keys are configured, it allows all requests (handy for local dev).
func RequireClient(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Clients) > 0 || len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := keys.client(readAuth(r))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":   "Invalid or missing API key",
					"message": "Please provide a valid API key in X-API-Key header",
				})
				return
			}
			next.ServeHTTP(w, setClient(r, name))
		})
	}
}

// RequireAdmin only permits requests that present an admin key.
// If no admin keys are configured, it allows all requests (dev).
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := readAuth(r)
			if key == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			if !hasKey(key, keys.Admin) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, setClient(r, "admin"))
		})
	}
}
