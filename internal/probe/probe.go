package probe

import "context"

// CheckResult is the unified result of a single reachability probe.
// StatusCode is 0 for transport errors.
type CheckResult struct {
	Success    bool    `json:"success"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
	Message    string  `json:"message"`
	StatusCode int     `json:"status_code,omitempty"`
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
