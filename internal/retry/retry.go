// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package retry runs fallible operations with bounded retries and
// exponential backoff.
//
// Do calls the operation once and then up to MaxAttempts more times,
// sleeping BaseDelay*2^n before retry n (zero-based). When every call fails
// the error from the final call is returned as is, so callers can still
// match it with errors.Is and errors.As.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
)

// maxShift caps the exponent so BaseDelay<<n cannot overflow.
const maxShift = 30

// Policy controls retry behavior.
type Policy struct {
	// MaxAttempts is the number of retries after the first call.
	// Zero means exactly one call.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Each later retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration

	// Operation labels log lines and metrics.
	Operation string

	// Retryable reports whether err is worth retrying. Nil retries every
	// error except context cancellation.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the backoff before retry number attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt > maxShift {
		attempt = maxShift
	}
	var d time.Duration
	if p.BaseDelay > time.Duration(math.MaxInt64>>uint(attempt)) {
		d = time.Duration(math.MaxInt64)
	} else {
		d = p.BaseDelay << uint(attempt)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, the retry budget is spent, a non-retryable
// error occurs or ctx is cancelled.
//
// Cancellation is checked before every sleep. When ctx ends first the
// returned error joins ctx.Err() with the last operation error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= maxAttempts || !retryable(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Join(ctxErr, err)
		}

		delay := p.Delay(attempt)
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("operation", p.Operation).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Msg("Operation failed, retrying")
		metrics.RetryAttempts.WithLabelValues(p.Operation).Inc()

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(sleepErr, err)
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func defaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
