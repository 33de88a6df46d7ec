// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// recordSleeps returns a Sleep func that records delays without waiting.
func recordSleeps(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDo_Termination(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		wantCalls   int
	}{
		{"zero attempts means one call", 0, 1},
		{"one retry", 1, 2},
		{"three retries", 3, 4},
		{"negative treated as zero", -2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			var errs []error
			calls := 0

			_, err := Do(context.Background(), Policy{
				MaxAttempts: tt.maxAttempts,
				BaseDelay:   100 * time.Millisecond,
				Sleep:       recordSleeps(&delays),
			}, func(context.Context) (int, error) {
				calls++
				e := fmt.Errorf("failure %d", calls)
				errs = append(errs, e)
				return 0, e
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			last := errs[len(errs)-1]
			if err != last {
				t.Errorf("expected the final attempt's error %v, got %v", last, err)
			}
			if len(delays) != tt.wantCalls-1 {
				t.Errorf("sleeps = %d, want %d", len(delays), tt.wantCalls-1)
			}
		})
	}
}

func TestDo_ExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	calls := 0

	_, err := Do(context.Background(), Policy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		Sleep:       recordSleeps(&delays),
	}, func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, errors.New("transient")
		}
		return calls, nil
	})
	if err != nil {
		t.Fatalf("expected success on 4th call, got %v", err)
	}

	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v", got)
	}
	if got := p.Delay(3); got != 8*time.Second {
		t.Errorf("Delay(3) = %v", got)
	}
	if got := p.Delay(4); got != 10*time.Second {
		t.Errorf("Delay(4) should be capped, got %v", got)
	}
	if got := (Policy{BaseDelay: time.Hour}).Delay(200); got <= 0 {
		t.Errorf("large attempt must not overflow, got %v", got)
	}
}

var errAuth = errors.New("unauthorized")

func TestDo_NonRetryableStopsEarly(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, errAuth) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("page 1: %w", errAuth)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errAuth) {
		t.Errorf("expected wrapped errAuth, got %v", err)
	}
}

func TestDo_CancelledBeforeSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opErr := errors.New("boom")
	calls := 0
	slept := false

	_, err := Do(ctx, Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep: func(context.Context, time.Duration) error {
			slept = true
			return nil
		},
	}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, opErr
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if slept {
		t.Error("must not sleep after cancellation")
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, opErr) {
		t.Errorf("expected error joining cancellation and op error, got %v", err)
	}
}

func TestDo_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Run(ctx, Policy{MaxAttempts: 3, BaseDelay: 10 * time.Second}, func(context.Context) error {
		return errors.New("still down")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("sleep was not interrupted by context")
	}
}

func TestDo_ContextErrorFromOpNotRetried(t *testing.T) {
	calls := 0
	err := Run(context.Background(), Policy{MaxAttempts: 3}, func(context.Context) error {
		calls++
		return fmt.Errorf("request: %w", context.DeadlineExceeded)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
