package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingServer answers with the status chosen per method and keeps the
// method and User-Agent of every request it sees.
type recordingServer struct {
	mu      sync.Mutex
	methods []string
	agents  []string
	status  map[string]int
}

func (rs *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rs.mu.Lock()
	rs.methods = append(rs.methods, r.Method)
	rs.agents = append(rs.agents, r.Header.Get("User-Agent"))
	code, ok := rs.status[r.Method]
	rs.mu.Unlock()
	if !ok {
		code = http.StatusOK
	}
	w.WriteHeader(code)
}

func (rs *recordingServer) seen() ([]string, []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.methods...), append([]string(nil), rs.agents...)
}

func TestHTTPChecker_HeadIsEnough(t *testing.T) {
	rs := &recordingServer{}
	s := httptest.NewServer(rs)
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if !out.Success || out.StatusCode != http.StatusOK {
		t.Fatalf("want 200 success, got %+v", out)
	}
	methods, agents := rs.seen()
	if len(methods) != 1 || methods[0] != http.MethodHead {
		t.Fatalf("methods = %v, want a single HEAD", methods)
	}
	if agents[0] != "uptimemonitor-probe/1.0" {
		t.Fatalf("user agent = %q", agents[0])
	}
}

func TestHTTPChecker_FallbackToGET(t *testing.T) {
	for _, code := range []int{http.StatusMethodNotAllowed, http.StatusNotImplemented} {
		rs := &recordingServer{status: map[string]int{http.MethodHead: code, http.MethodGet: http.StatusNoContent}}
		s := httptest.NewServer(rs)

		out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
		s.Close()

		if !out.Success || out.StatusCode != http.StatusNoContent {
			t.Fatalf("HEAD %d: want 204 success, got %+v", code, out)
		}
		methods, agents := rs.seen()
		if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodGet {
			t.Fatalf("HEAD %d: methods = %v", code, methods)
		}
		for _, ua := range agents {
			if ua != "uptimemonitor-probe/1.0" {
				t.Fatalf("HEAD %d: user agent = %q", code, ua)
			}
		}
	}
}

func TestHTTPChecker_StatusClasses(t *testing.T) {
	cases := []struct {
		code int
		up   bool
	}{
		{http.StatusOK, true},
		{http.StatusMovedPermanently, true},
		{http.StatusNotModified, true},
		{http.StatusNotFound, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		rs := &recordingServer{status: map[string]int{http.MethodHead: tc.code}}
		s := httptest.NewServer(rs)
		chk := NewHTTPChecker(2 * time.Second)
		// Redirects are reported, not followed.
		chk.Client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

		out := chk.Check(context.Background(), s.URL)
		s.Close()

		if out.Success != tc.up || out.StatusCode != tc.code {
			t.Fatalf("status %d: got %+v", tc.code, out)
		}
		if !strings.HasPrefix(out.Message, strconv.Itoa(tc.code)) {
			t.Fatalf("status %d: message = %q", tc.code, out.Message)
		}
	}
}

func TestHTTPChecker_ContextCancelIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer s.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := NewHTTPChecker(5*time.Second).Check(ctx, s.URL)
	if out.Success || out.StatusCode != 0 {
		t.Fatalf("want transport failure, got %+v", out)
	}
	if out.Message == "" {
		t.Fatalf("want error message")
	}
}
