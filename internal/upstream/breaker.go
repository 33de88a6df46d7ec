// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package upstream

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/record"
)

// BreakerName labels the upstream circuit breaker in metrics.
const BreakerName = "upstream-api"

// BreakerClient wraps Client with a circuit breaker so a failing upstream
// is not hammered by every collection and retry.
//
// The breaker:
//   - allows 3 requests while half-open
//   - resets counts every minute while closed
//   - waits 2 minutes before probing an open circuit
//   - opens at a 60% failure rate over at least 10 requests
//
// Credential and not-found responses do not count as failures; they say
// nothing about upstream health.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*record.PageResponse]
	name   string
}

// NewBreakerClient builds a Client with circuit breaker protection.
func NewBreakerClient(cfg config.UpstreamConfig) *BreakerClient {
	return WrapWithBreaker(NewClient(cfg), BreakerName)
}

// WrapWithBreaker adds a circuit breaker named name in front of client.
func WrapWithBreaker(client *Client, name string) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*record.PageResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrUnauthorized) ||
				errors.Is(err, ErrCollectionNotFound)
		},
	})

	return &BreakerClient{client: client, cb: cb, name: name}
}

// GetPage fetches one page through the breaker.
func (b *BreakerClient) GetPage(ctx context.Context, object string, page, pageSize int) (*record.PageResponse, error) {
	return b.execute(func() (*record.PageResponse, error) {
		return b.client.GetPage(ctx, object, page, pageSize)
	})
}

// Ping checks connectivity through the breaker.
func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := b.execute(func() (*record.PageResponse, error) {
		return nil, b.client.Ping(ctx)
	})
	return err
}

// State returns the breaker state as closed, half-open or open.
func (b *BreakerClient) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerClient) execute(fn func() (*record.PageResponse, error)) (*record.PageResponse, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Str("breaker", b.name).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
