package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func strp(s string) *string { return &s }

func TestIncident_CloseComputesDuration(t *testing.T) {
	start := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	inc := Incident{DomainID: 1, Start: start}
	inc.Close(start.Add(90*time.Second + 700*time.Millisecond))

	if !inc.Resolved || inc.End == nil {
		t.Fatalf("expected resolved with end, got %+v", inc)
	}
	if inc.Duration() != 90 {
		t.Fatalf("want floored 90s, got %d", inc.Duration())
	}
}

func TestIncident_CloseClampsSkew(t *testing.T) {
	start := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	inc := Incident{DomainID: 1, Start: start}
	inc.Close(start.Add(-5 * time.Second))
	if inc.Duration() != 0 {
		t.Fatalf("want 0 on skew, got %d", inc.Duration())
	}
}

func TestNormalizeSound(t *testing.T) {
	cases := []struct {
		in   *string
		want string
	}{
		{nil, DefaultSoundDown},
		{strp(""), DefaultSoundDown},
		{strp("alarm.wav"), "alarm"},
		{strp("beep1.mp3"), "beep1"},
		{strp("siren"), "siren"},
	}
	for _, c := range cases {
		if got := NormalizeSound(c.in, DefaultSoundDown); got != c.want {
			t.Fatalf("NormalizeSound(%v)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestDisplayNameAndLabel(t *testing.T) {
	if got := DisplayName(nil, 42); got != "Domain #42" {
		t.Fatalf("unexpected fallback name %q", got)
	}
	d := &Domain{ID: 1, Name: "example.com"}
	if got := DisplayLabel(d, 1); got != "example.com" {
		t.Fatalf("label should fall back to name, got %q", got)
	}
	d.Label = strp("Main site")
	if got := DisplayLabel(d, 1); got != "Main site" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestSignal_Validate(t *testing.T) {
	ok := Signal{DomainID: 1, DetectedAt: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := Signal{DomainID: 0, DetectedAt: time.Now()}
	if err := bad.Validate(); !IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
	noTime := Signal{DomainID: 3}
	if err := noTime.Validate(); !IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestRateLimitedError_Message(t *testing.T) {
	var err error = &RateLimitedError{Key: "7", RetryAfter: time.Minute}
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limited error")
	}
	if err.Error() != "rate limited for 7, retry after 60 seconds" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if errors.Is(err, ErrPersistence) {
		t.Fatalf("rate limited must not match persistence")
	}
}

func TestIncident_JSONShape(t *testing.T) {
	d := int64(30)
	end := time.Date(2025, 8, 18, 12, 0, 30, 0, time.UTC)
	inc := Incident{ID: 5, DomainID: 2, Start: end.Add(-30 * time.Second), End: &end, DurationSeconds: &d, Resolved: true}
	b, err := json.Marshal(inc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["duration_seconds"].(float64) != 30 || m["resolved"] != true {
		t.Fatalf("unexpected json: %s", b)
	}
}
