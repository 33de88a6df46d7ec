// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package cache

import "time"

// Cacher is the result cache contract used by the sync orchestrator.
type Cacher interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	Invalidate(key string)
	InvalidateAll()
	GetStats() Stats
	HitRate() float64
}

var _ Cacher = (*Cache)(nil)

// Typed wraps a Cacher so callers avoid type assertions.
type Typed[T any] struct {
	c Cacher
}

// NewTyped wraps c.
func NewTyped[T any](c Cacher) *Typed[T] {
	return &Typed[T]{c: c}
}

// Get returns the cached T. A stored value of another type counts as absent.
func (t *Typed[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores v with the default TTL.
func (t *Typed[T]) Set(key string, v T) {
	t.c.Set(key, v)
}

// SetWithTTL stores v with a specific TTL.
func (t *Typed[T]) SetWithTTL(key string, v T, ttl time.Duration) {
	t.c.SetWithTTL(key, v, ttl)
}

// Invalidate removes key.
func (t *Typed[T]) Invalidate(key string) {
	t.c.Invalidate(key)
}
