package probe

import (
	"context"
	"strings"
	"testing"
	"time"
)

// scriptedChecker replays results in order and counts calls.
type scriptedChecker struct {
	script []CheckResult
	calls  int
	onCall func(n int)
}

func (s *scriptedChecker) Check(context.Context, string) CheckResult {
	s.calls++
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	if s.calls > len(s.script) {
		return CheckResult{Message: "exhausted"}
	}
	return s.script[s.calls-1]
}

func TestRetryChecker_RecoveredResultIsUntouched(t *testing.T) {
	inner := &scriptedChecker{script: []CheckResult{
		{Message: "connection refused"},
		{Success: true, StatusCode: 200, Message: "200 OK"},
	}}
	rc := &RetryChecker{Inner: inner, Attempts: 3, Backoff: time.Millisecond}

	out := rc.Check(context.Background(), "https://example.com")
	if !out.Success || out.Message != "200 OK" {
		t.Fatalf("want clean success, got %+v", out)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryChecker_ExhaustedKeepsLastFailure(t *testing.T) {
	inner := &scriptedChecker{script: []CheckResult{
		{Message: "timeout"},
		{Message: "timeout"},
		{StatusCode: 503, Message: "503 Service Unavailable"},
	}}
	rc := &RetryChecker{Inner: inner, Attempts: 3}

	out := rc.Check(context.Background(), "https://example.com")
	if out.Success {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Message != "503 Service Unavailable (after retries)" || out.StatusCode != 503 {
		t.Fatalf("got %+v", out)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryChecker_SingleAttemptHasNoSuffix(t *testing.T) {
	for _, attempts := range []int{0, 1} {
		inner := &scriptedChecker{script: []CheckResult{{Message: "dns failure"}}}
		out := (&RetryChecker{Inner: inner, Attempts: attempts}).Check(context.Background(), "x")
		if out.Message != "dns failure" || inner.calls != 1 {
			t.Fatalf("attempts=%d: got %+v after %d calls", attempts, out, inner.calls)
		}
	}
}

func TestRetryChecker_CancelDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := &scriptedChecker{
		script: []CheckResult{{Message: "refused"}, {Success: true}},
		onCall: func(int) { cancel() },
	}
	rc := &RetryChecker{Inner: inner, Attempts: 5, Backoff: time.Hour}

	done := make(chan CheckResult, 1)
	go func() { done <- rc.Check(ctx, "https://example.com") }()

	select {
	case out := <-done:
		if out.Success || out.Message != "refused (retry aborted)" {
			t.Fatalf("got %+v", out)
		}
		if strings.Contains(out.Message, "after retries") {
			t.Fatalf("aborted run reported as exhausted: %q", out.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff ignored context cancellation")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}
