// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/record"
)

// maxErrorBodySize caps how much of an error response is kept for reporting.
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads at most maxErrorBodySize bytes of r.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	if len(body) == maxErrorBodySize {
		return string(body) + "\n... (truncated)"
	}
	return strings.TrimSpace(string(body))
}

// DefaultMaxPageSize is the upstream's rows_per_page ceiling when the
// configuration does not set one.
const DefaultMaxPageSize = 1000

// Client reads record pages from the upstream REST API. It performs exactly
// one HTTP request per call; throttling and retries belong to the caller.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL      string
	appID        string
	apiKey       string
	appIDHeader  string
	apiKeyHeader string
	maxPageSize  int
	client       *http.Client
}

// NewClient builds a Client from upstream configuration.
func NewClient(cfg config.UpstreamConfig) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewClientWithHTTP is NewClient with a caller-supplied http.Client.
func NewClientWithHTTP(cfg config.UpstreamConfig, hc *http.Client) *Client {
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		appID:        cfg.ApplicationID,
		apiKey:       cfg.APIKey,
		appIDHeader:  cfg.AppIDHeader,
		apiKeyHeader: cfg.APIKeyHeader,
		maxPageSize:  maxPageSize,
		client:       hc,
	}
}

// GetPage fetches one page of records of object. Pages are 1-based.
// pageSize is clamped to [1, max page size]; zero or less asks for the
// maximum.
func (c *Client) GetPage(ctx context.Context, object string, page, pageSize int) (*record.PageResponse, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("rows_per_page", strconv.Itoa(c.clampPageSize(pageSize)))
	path := "/v1/objects/" + url.PathEscape(object) + "/records"

	var result record.PageResponse
	if err := c.doJSON(ctx, path, query, &result); err != nil {
		return nil, fmt.Errorf("get %s page %d: %w", object, page, err)
	}
	return &result, nil
}

func (c *Client) clampPageSize(n int) int {
	if n <= 0 || n > c.maxPageSize {
		return c.maxPageSize
	}
	return n
}

// Ping checks that the application is reachable with the configured
// credentials.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.doJSON(ctx, "/v1/applications/"+url.PathEscape(c.appID), nil, nil); err != nil {
		return fmt.Errorf("ping upstream: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, path string, query url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set(c.appIDHeader, c.appID)
	req.Header.Set(c.apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordUpstreamResponse(0)
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamResponse(resp.StatusCode)

	logging.Trace().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Upstream request")

	if err := checkStatus(resp); err != nil {
		return err
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// checkStatus maps non-2xx responses onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &QuotaError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnauthorized, resp.StatusCode, readBodyForError(resp.Body))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, readBodyForError(resp.Body))
	default:
		return &StatusError{StatusCode: resp.StatusCode, Body: readBodyForError(resp.Body)}
	}
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
