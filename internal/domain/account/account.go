// Package account tracks per-provider credential rotation state: which
// account index within a provider's ordered credential list is rate
// limited, and for how long.
package account

import (
	"sync"
	"time"
)

// Manager tracks rate-limit state per (provider, index).
type Manager struct {
	mu     sync.Mutex
	clock  func() time.Time
	byProv map[string]map[int]time.Time // provider -> index -> rateLimitedUntil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// New constructs an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		clock:  time.Now,
		byProv: make(map[string]map[int]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetNextAvailable returns the first index in [0,n) with no rate-limit
// state or an expired one; if all n are currently rate limited, it returns
// the index with the earliest rateLimitedUntil.
func (m *Manager) GetNextAvailable(provider string, n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.byProv[provider]
	now := m.clock()

	best := -1
	var bestUntil time.Time
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || now.After(until) || now.Equal(until) {
			return i
		}
		if best == -1 || until.Before(bestUntil) {
			best = i
			bestUntil = until
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

// MarkRateLimited records that account index within provider is rate
// limited for durationMs milliseconds from now.
func (m *Manager) MarkRateLimited(provider string, index int, durationMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	states, ok := m.byProv[provider]
	if !ok {
		states = make(map[int]time.Time)
		m.byProv[provider] = states
	}
	states[index] = m.clock().Add(time.Duration(durationMs) * time.Millisecond)
}

// AreAllRateLimited reports whether every index in [0,n) has an active,
// unexpired rate-limit state.
func (m *Manager) AreAllRateLimited(provider string, n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := m.byProv[provider]
	now := m.clock()
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || !until.After(now) {
			return false
		}
	}
	return n > 0
}

// GetMinWaitTime returns the minimum time until any of [0,n) becomes
// available, in milliseconds; 0 if any index is already available.
func (m *Manager) GetMinWaitTime(provider string, n int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := m.byProv[provider]
	now := m.clock()

	min := int64(-1)
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || !until.After(now) {
			return 0
		}
		wait := until.Sub(now).Milliseconds()
		if min == -1 || wait < min {
			min = wait
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
