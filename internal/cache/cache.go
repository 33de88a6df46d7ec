// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package cache provides the result cache: an in-memory, time-boxed
// memoization layer keyed by opaque strings.
//
// An entry is valid while now - CreatedAt <= TTL. Expired entries are treated
// as absent and are removed by the Get that finds them; there is no
// background sweeper. A TTL of zero keeps an entry valid only at the instant
// it was written, so callers behave correctly (just slower) with caching
// effectively disabled.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/metrics"
)

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 300 * time.Second

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is one cached item.
type Entry struct {
	Key       string
	Data      interface{}
	CreatedAt time.Time
	TTL       time.Duration
}

// Valid reports whether the entry is still fresh at now.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) <= e.TTL
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// Cache is a thread-safe TTL cache with lazy eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   Clock

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache whose Set uses defaultTTL. A negative defaultTTL
// falls back to DefaultTTL; zero is honored.
func New(defaultTTL time.Duration, opts ...Option) *Cache {
	if defaultTTL < 0 {
		defaultTTL = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     defaultTTL,
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Expired entries are deleted and
// reported as absent.
func (c *Cache) Get(key string) (interface{}, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if !entry.Valid(now) {
		c.mu.Lock()
		// Re-check: another goroutine may have stored a fresh entry since RUnlock.
		if current, ok := c.entries[key]; ok && !current.Valid(now) {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores value with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with a specific TTL. The entry's age starts now,
// independent of any earlier entry under the same key.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	entry := Entry{Key: key, Data: value, CreatedAt: c.clock.Now(), TTL: ttl}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate removes key. Missing keys are ignored.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
}

// InvalidateAll removes every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	c.evictions.Add(int64(n))
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DefaultTTL returns the TTL used by Set.
func (c *Cache) DefaultTTL() time.Duration {
	return c.ttl
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		TotalKeys: int64(c.Len()),
	}
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	metrics.CacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	metrics.CacheMisses.Inc()
}

// GenerateKey builds a stable key from a prefix and JSON-serializable params.
//
//	key := cache.GenerateKey("preview", map[string]string{"collection": "devices"})
func GenerateKey(prefix string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return prefix + ":" + fmt.Sprintf("%v", params)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, sum[:16])
}
