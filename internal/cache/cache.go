// Package cache provides the short-lived page memoization used by the
// synchronizers: a map of entries that are valid for a fixed TTL after
// capture and are cleared wholesale on any mutation.
package cache

import (
	"sync"
	"time"
)

// Entry pairs a fetched value with the time it was captured.
type Entry[T any] struct {
	Value      T
	CapturedAt time.Time
}

// Valid reports whether the entry is still within ttl at now.
func (e Entry[T]) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CapturedAt) < ttl
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// TTL is a string-keyed cache of Entry values with a single time-to-live.
// It is safe for concurrent use.
type TTL[T any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        Clock
	entries    map[string]Entry[T]
	generation uint64
}

// New creates an empty cache. A nil clock uses time.Now.
func New[T any](ttl time.Duration, now Clock) *TTL[T] {
	if now == nil {
		now = time.Now
	}
	return &TTL[T]{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]Entry[T]),
	}
}

// Get returns the value stored under key when it has not expired.
// Expired entries are dropped on access.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !e.Valid(c.now(), c.ttl) {
		delete(c.entries, key)
		return zero, false
	}
	return e.Value, true
}

// Put stores value under key, captured now.
func (c *TTL[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[T]{Value: value, CapturedAt: c.now()}
}

// PutIfGeneration stores value only if no Clear happened since gen was read
// with Generation. It reports whether the value was stored.
func (c *TTL[T]) PutIfGeneration(key string, value T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.entries[key] = Entry[T]{Value: value, CapturedAt: c.now()}
	return true
}

// Generation returns a counter that changes on every Clear.
func (c *TTL[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Clear drops every entry. There is no per-key invalidation: any mutation of
// the underlying data invalidates every cached page.
func (c *TTL[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[T])
	c.generation++
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the configured time-to-live.
func (c *TTL[T]) TTL() time.Duration {
	return c.ttl
}
