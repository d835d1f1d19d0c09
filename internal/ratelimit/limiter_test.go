package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_RejectsAtCapacityThenRecovers(t *testing.T) {
	l := New(400, 60*time.Second)
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 400; i++ {
		ok, remaining := l.Admit("7", t0.Add(time.Duration(i)*time.Millisecond))
		require.True(t, ok, "admission %d", i+1)
		require.Equal(t, 400-i-1, remaining)
	}

	ok, remaining := l.Admit("7", t0.Add(59*time.Second))
	assert.False(t, ok, "401st admission inside the window must be rejected")
	assert.Equal(t, 0, remaining)

	// every recorded timestamp is now at least a full window old
	ok, remaining = l.Admit("7", t0.Add(60*time.Second+400*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 399, remaining)
}

func TestAdmit_RejectionDoesNotConsume(t *testing.T) {
	l := New(2, time.Second)
	t0 := time.Unix(1000, 0)

	ok, _ := l.Admit("a", t0)
	require.True(t, ok)
	ok, _ = l.Admit("a", t0.Add(500*time.Millisecond))
	require.True(t, ok)
	ok, _ = l.Admit("a", t0.Add(900*time.Millisecond))
	require.False(t, ok)

	// only the first entry has aged out
	ok, remaining := l.Admit("a", t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Now()

	ok, _ := l.Admit("1", now)
	require.True(t, ok)
	ok, _ = l.Admit("1", now)
	require.False(t, ok)
	ok, _ = l.Admit("2", now)
	require.True(t, ok)
	assert.Equal(t, 2, l.Keys())
}

func TestAdmit_ConcurrentSameKeyNeverOverAdmits(t *testing.T) {
	l := NewSharded(100, time.Minute, 4)
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if ok, _ := l.Admit("hot", now); ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowed)
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultCapacity, l.Capacity())
	assert.Equal(t, DefaultWindow, l.Window())
}
