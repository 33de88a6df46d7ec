// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/api"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

// daemonDialTimeout bounds the health check that decides whether commands
// go through a running daemon.
const daemonDialTimeout = time.Second

// maxDaemonResponse caps how much of a daemon response is decoded.
const maxDaemonResponse = 16 << 20

// maxOutcomesLimit mirrors the API's upper bound on ?limit.
const maxOutcomesLimit = 1000

var (
	errDaemonSyncInProgress = errors.New("the daemon is already running a sync, try again when it finishes")
	errDaemonNoHistory      = errors.New("outcome history is disabled on the daemon")
)

// daemonClient talks to the operator API of a running recordsync daemon.
// The daemon holds the local store and the history directory, so while it
// runs, the CLI works through it instead of opening them.
type daemonClient struct {
	baseURL string
	client  *http.Client
}

// daemonResponse is the API envelope with a typed payload.
type daemonResponse[T any] struct {
	Success bool          `json:"success"`
	Data    T             `json:"data"`
	Error   *api.APIError `json:"error,omitempty"`
}

// daemonError is a non-2xx answer from the daemon.
type daemonError struct {
	Status  int
	Code    string
	Message string
}

func (e *daemonError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon answered HTTP %d", e.Status)
	}
	return fmt.Sprintf("daemon answered HTTP %d: %s", e.Status, e.Message)
}

// daemonURL is where a daemon started with cfg listens. Wildcard hosts are
// reached over loopback.
func daemonURL(cfg config.ServerConfig) string {
	host := cfg.Host
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// findDaemon returns a client for the daemon that should serve this
// command, or nil to run in-process. An address given with --server must
// answer; the configured address is only tried.
func (o *rootOptions) findDaemon(ctx context.Context, cfg *config.Config) (*daemonClient, error) {
	if o.local {
		return nil, nil
	}
	explicit := o.serverURL != ""
	base := o.serverURL
	if !explicit {
		base = daemonURL(cfg.Server)
	}

	d := &daemonClient{baseURL: strings.TrimRight(base, "/"), client: &http.Client{}}
	err := d.ping(ctx)
	switch {
	case err == nil:
		logging.Debug().Str("url", d.baseURL).Msg("Using running daemon")
		return d, nil
	case explicit:
		return nil, fmt.Errorf("daemon at %s: %w", d.baseURL, err)
	default:
		logging.Debug().Err(err).Str("url", d.baseURL).Msg("No daemon answering, running in-process")
		return nil, nil
	}
}

func (d *daemonClient) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, daemonDialTimeout)
	defer cancel()

	health, _, err := daemonCall[api.HealthStatus](ctx, d, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	if health.Status == "" {
		return errors.New("not a recordsync daemon")
	}
	return nil
}

// sync runs names (all scheduled collections when empty) on the daemon.
func (d *daemonClient) sync(ctx context.Context, names []string) ([]recsync.Outcome, error) {
	resp, status, err := daemonCall[api.SyncResponse](ctx, d, http.MethodPost, "/api/v1/sync",
		api.TriggerRequest{Collections: names})
	switch {
	case status == http.StatusConflict:
		return nil, errDaemonSyncInProgress
	case status == http.StatusNotFound:
		return nil, configError(err)
	case err != nil:
		return nil, err
	}
	return resp.Outcomes, nil
}

func (d *daemonClient) outcomes(ctx context.Context, collection string, limit int) ([]recsync.Outcome, error) {
	if limit <= 0 || limit > maxOutcomesLimit {
		limit = maxOutcomesLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if collection != "" {
		q.Set("collection", collection)
	}
	out, status, err := daemonCall[[]recsync.Outcome](ctx, d, http.MethodGet, "/api/v1/outcomes?"+q.Encode(), nil)
	if status == http.StatusServiceUnavailable {
		return nil, errDaemonNoHistory
	}
	return out, err
}

func (d *daemonClient) collections(ctx context.Context) ([]collectionRow, error) {
	rows, _, err := daemonCall[[]collectionRow](ctx, d, http.MethodGet, "/api/v1/collections", nil)
	return rows, err
}

// daemonCall sends one request and decodes the envelope. The HTTP status is
// returned alongside any error so callers can map it.
func daemonCall[T any](ctx context.Context, d *daemonClient, method, path string, body any) (T, int, error) {
	var zero T

	reqBody := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reqBody)
	if err != nil {
		return zero, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return zero, 0, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env daemonResponse[T]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDaemonResponse)).Decode(&env); err != nil {
		return zero, resp.StatusCode, fmt.Errorf("decode %s response (HTTP %d): %w", path, resp.StatusCode, err)
	}
	// 207 carries outcomes with success=false, so only >= 300 is an error.
	if resp.StatusCode >= http.StatusMultipleChoices {
		derr := &daemonError{Status: resp.StatusCode}
		if env.Error != nil {
			derr.Code, derr.Message = env.Error.Code, env.Error.Message
		}
		return zero, resp.StatusCode, derr
	}
	return env.Data, resp.StatusCode, nil
}
