// Package ratelimit implements sliding-window admission control keyed by an
// arbitrary string (the domain id for signal ingestion).
package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultCapacity = 400
	DefaultWindow   = 60 * time.Second
	defaultShards   = 32
)

// Limiter keeps, per key, the admission timestamps inside the trailing
// window. Keys are spread over independently locked shards.
//
// Keys that go quiet are never evicted; memory per key is bounded by the
// capacity.
type Limiter struct {
	capacity int
	window   time.Duration
	shards   []*shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func New(capacity int, window time.Duration) *Limiter {
	return NewSharded(capacity, window, defaultShards)
}

func NewSharded(capacity int, window time.Duration, shards int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if shards < 1 {
		shards = 1
	}
	l := &Limiter{capacity: capacity, window: window, shards: make([]*shard, shards)}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string][]time.Time)}
	}
	return l
}

func (l *Limiter) Capacity() int { return l.capacity }
func (l *Limiter) Window() time.Duration { return l.window }

// Admit records an admission for key at now if the window has room.
// remaining is the number of admissions still available after this one,
// and 0 on rejection.
func (l *Limiter) Admit(key string, now time.Time) (allowed bool, remaining int) {
	s := l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-l.window)
	w := s.windows[key]
	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w = append(w[:0], w[i:]...)
	}

	count := len(w)
	if count >= l.capacity {
		s.windows[key] = w
		return false, 0
	}
	s.windows[key] = append(w, now)
	return true, l.capacity - count - 1
}

// Keys reports how many keys are tracked across all shards.
func (l *Limiter) Keys() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
