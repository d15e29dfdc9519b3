// Package ratelimit counts failed attempts per key inside a sliding expiry window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks failures per key. A key is blocked once its failures in the
// current window reach the configured maximum.
type Limiter interface {
	// Blocked reports whether key is locked out and for how long.
	Blocked(ctx context.Context, key string) (bool, time.Duration, error)
	// Fail records one failure and returns the count in the current window.
	Fail(ctx context.Context, key string) (int, error)
	// Reset clears the failures of key.
	Reset(ctx context.Context, key string) error
}

// Policy bounds failures.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Window <= 0 {
		p.Window = 15 * time.Minute
	}
	return p
}

type entry struct {
	count   int
	expires time.Time
}

// Memory is an in-process Limiter. Expired entries are dropped lazily.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	entries map[string]entry
}

// NewMemory constructs an in-process limiter.
func NewMemory(policy Policy) *Memory {
	return &Memory{policy: policy.normalized(), now: time.Now, entries: map[string]entry{}}
}

// SetClock overrides the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

// Blocked implements Limiter.
func (m *Memory) Blocked(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.count < m.policy.MaxAttempts {
		return false, 0, nil
	}
	return true, e.expires.Sub(m.now()), nil
}

// Fail implements Limiter. The window starts at the first failure.
func (m *Memory) Fail(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		e = entry{expires: m.now().Add(m.policy.Window)}
	}
	e.count++
	m.entries[key] = e
	return e.count, nil
}

// Reset implements Limiter.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

var _ Limiter = (*Memory)(nil)
