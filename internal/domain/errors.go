package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for unknown domains or incidents.
	ErrNotFound = errors.New("not found")
	// ErrNoActiveIncident marks an UP signal with nothing to close. Non-fatal.
	ErrNoActiveIncident = errors.New("no active downtime log")
	// ErrPersistence wraps store failures during a transition. The signal was
	// not applied and may be retried.
	ErrPersistence = errors.New("persistence failure")
	// ErrConflict is returned on unique-constraint violations.
	ErrConflict = errors.New("conflict")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// RateLimitedError carries the retry hint for a rejected signal.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited for %s, retry after %d seconds", e.Key, int(e.RetryAfter.Seconds()))
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}
