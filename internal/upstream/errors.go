// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// ErrRateLimited is returned when upstream rejects a request with 429.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrUnauthorized is returned on 401 and 403. Credentials are wrong or
	// lack access to the object; retrying cannot help.
	ErrUnauthorized = errors.New("upstream rejected credentials")

	// ErrCollectionNotFound is returned on 404 for an object path.
	ErrCollectionNotFound = errors.New("upstream collection not found")
)

// QuotaError is a 429 response. RetryAfter is zero when upstream did not
// send a Retry-After header.
type QuotaError struct {
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *QuotaError) Unwrap() error { return ErrRateLimited }

// StatusError is an unexpected non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a transport or quota failure worth
// retrying. Credential, not-found, decode and cancellation errors are
// permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrCollectionNotFound) {
		return false
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	// Transport failures and an open breaker both clear up on their own.
	return true
}

// DecodeError means the response body was not a valid page.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode upstream response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorType returns a short label for metrics and outcome reporting.
func ErrorType(err error) string {
	var statusErr *StatusError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrRateLimited):
		return "quota"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCollectionNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &statusErr):
		return "http_status"
	default:
		return "transport"
	}
}
