// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock advances simulated time whenever a caller waits on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// blockingClock never fires, so only cancellation can release a waiter.
type blockingClock struct{ *fakeClock }

func (c *blockingClock) After(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// assertWindowInvariant checks that no half-open one-second window ending
// at an admission contains more than max admissions.
func assertWindowInvariant(t *testing.T, admitted []time.Time, max int) {
	t.Helper()
	for i, end := range admitted {
		count := 0
		for _, ts := range admitted[:i+1] {
			if end.Sub(ts) < Window {
				count++
			}
		}
		if count > max {
			t.Fatalf("window ending at admission %d holds %d requests, max %d", i, count, max)
		}
	}
}

func TestGovernor_AdmitsUpToLimitWithoutWaiting(t *testing.T) {
	clock := newFakeClock()
	g := New(Config{MaxPerSecond: 10}, WithClock(clock))
	start := clock.Now()

	for i := 0; i < 10; i++ {
		if err := g.Admit(context.Background()); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	if !clock.Now().Equal(start) {
		t.Errorf("expected no simulated wait, clock advanced %v", clock.Now().Sub(start))
	}
	if g.Len() != 10 {
		t.Errorf("Len() = %d, want 10", g.Len())
	}
}

func TestGovernor_WaitsWhenWindowFull(t *testing.T) {
	clock := newFakeClock()
	g := New(Config{MaxPerSecond: 2, SafetyMargin: 50 * time.Millisecond}, WithClock(clock))
	start := clock.Now()

	_ = g.Admit(context.Background())
	clock.Advance(200 * time.Millisecond)
	_ = g.Admit(context.Background())

	if err := g.Admit(context.Background()); err != nil {
		t.Fatalf("third admit: %v", err)
	}

	// oldest at +0ms, now +200ms: wait = 1000 - 200 + 50 = 850ms
	if got := clock.Now().Sub(start); got != 1050*time.Millisecond {
		t.Errorf("third request admitted at +%v, want +1.05s", got)
	}
}

func TestGovernor_RateLimitInvariant(t *testing.T) {
	tests := []struct {
		name   string
		max    int
		calls  int
		gapsMs []int
	}{
		{"burst", 10, 55, []int{0}},
		{"steady trickle", 3, 40, []int{120}},
		{"mixed gaps", 5, 60, []int{0, 0, 10, 400, 0, 990, 1, 250}},
		{"single slot", 1, 12, []int{300, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			g := New(Config{MaxPerSecond: tt.max}, WithClock(clock))

			admitted := make([]time.Time, 0, tt.calls)
			for i := 0; i < tt.calls; i++ {
				clock.Advance(time.Duration(tt.gapsMs[i%len(tt.gapsMs)]) * time.Millisecond)
				if err := g.Admit(context.Background()); err != nil {
					t.Fatalf("admit %d: %v", i, err)
				}
				admitted = append(admitted, clock.Now())
				assertWindowInvariant(t, admitted, tt.max)
				if g.Len() > tt.max {
					t.Fatalf("window length %d exceeds max %d", g.Len(), tt.max)
				}
			}
		})
	}
}

func TestGovernor_ConcurrentCallers(t *testing.T) {
	g := New(Config{MaxPerSecond: 5, SafetyMargin: 5 * time.Millisecond})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := make([]time.Time, 0, 12)

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Admit(context.Background()); err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != 12 {
		t.Fatalf("expected 12 admissions, got %d", len(admitted))
	}
	if g.Len() > 5 {
		t.Errorf("window length %d exceeds max 5", g.Len())
	}
}

func TestGovernor_CancelWhileWaiting(t *testing.T) {
	clock := &blockingClock{fakeClock: newFakeClock()}
	g := New(Config{MaxPerSecond: 1}, WithClock(clock))

	if err := g.Admit(context.Background()); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Admit(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Admit did not return after cancellation")
	}

	if g.Len() != 1 {
		t.Errorf("cancelled caller must not reserve a slot, Len() = %d", g.Len())
	}
}

func TestGovernor_CancelledContextBeforeAdmit(t *testing.T) {
	g := New(Config{MaxPerSecond: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestGovernor_Disabled(t *testing.T) {
	g := New(Config{MaxPerSecond: 0})
	for i := 0; i < 100; i++ {
		if err := g.Admit(context.Background()); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	if g.Len() != 0 {
		t.Errorf("disabled governor should not track requests, Len() = %d", g.Len())
	}
}
