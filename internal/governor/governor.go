// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package governor bounds the rate of outbound requests to the upstream
// record store.
//
// A Governor keeps the timestamps of requests admitted during the trailing
// one-second window. Admit prunes timestamps older than the window and, when
// the window is full, suspends the caller until the oldest entry ages out
// (plus a small safety margin), then re-checks. Prune, decision and append
// happen under one mutex so concurrent callers never overshoot the limit.
package governor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
)

// Window is the span over which MaxPerSecond is enforced.
const Window = time.Second

// DefaultSafetyMargin is added to every computed wait to stay clear of the
// window boundary.
const DefaultSafetyMargin = 50 * time.Millisecond

// Clock abstracts time so tests can simulate it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Config holds governor settings.
type Config struct {
	// MaxPerSecond is the number of requests admitted per rolling second.
	// Zero or negative disables throttling.
	MaxPerSecond int

	// SafetyMargin is added to each wait. Zero uses DefaultSafetyMargin.
	SafetyMargin time.Duration
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// Governor admits requests at no more than MaxPerSecond per rolling second.
type Governor struct {
	mu     sync.Mutex
	window []time.Time
	max    int
	margin time.Duration
	clock  Clock

	waitLog rate.Sometimes
}

// New creates a Governor.
func New(cfg Config, opts ...Option) *Governor {
	margin := cfg.SafetyMargin
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}
	g := &Governor{
		max:     cfg.MaxPerSecond,
		margin:  margin,
		clock:   realClock{},
		waitLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	if g.max > 0 {
		g.window = make([]time.Time, 0, g.max)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit blocks until a request may proceed and reserves its slot. It returns
// ctx.Err() without reserving anything if ctx ends while waiting.
func (g *Governor) Admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.max <= 0 {
		return nil
	}

	var waited time.Duration
	for {
		wait, ok := g.tryAdmit()
		if ok {
			if waited > 0 {
				metrics.GovernorWaitSeconds.Observe(waited.Seconds())
			}
			return nil
		}

		g.waitLog.Do(func() {
			logging.Debug().
				Dur("wait", wait).
				Int("max_per_second", g.max).
				Msg("Request governor throttling caller")
		})

		select {
		case <-g.clock.After(wait):
			waited += wait
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryAdmit prunes the window and either reserves a slot or reports how long
// the caller must wait before trying again.
func (g *Governor) tryAdmit() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.prune(now)
	if len(g.window) < g.max {
		g.window = append(g.window, now)
		return 0, true
	}
	return Window - now.Sub(g.window[0]) + g.margin, false
}

// prune drops timestamps that are a full window old. Must hold g.mu.
func (g *Governor) prune(now time.Time) {
	i := 0
	for i < len(g.window) && now.Sub(g.window[i]) >= Window {
		i++
	}
	if i > 0 {
		g.window = append(g.window[:0], g.window[i:]...)
	}
}

// Len returns the number of requests admitted during the trailing window.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.clock.Now())
	return len(g.window)
}

// Limit returns the configured requests per second.
func (g *Governor) Limit() int {
	return g.max
}
