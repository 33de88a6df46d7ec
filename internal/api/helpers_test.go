// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/cache"
	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/schema"
	recsync "github.com/tomtom215/recordsync/internal/sync"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type fakeSync struct {
	mu         sync.Mutex
	outcomes   []recsync.Outcome
	err        error
	names      []string
	calls      int
	lastAt     time.Time
	inProgress bool
	cols       []config.CollectionConfig
}

func (f *fakeSync) TriggerSync(_ context.Context, names ...string) ([]recsync.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.names = names
	return f.outcomes, f.err
}

func (f *fakeSync) LastRun() ([]recsync.Outcome, time.Time) { return f.outcomes, f.lastAt }
func (f *fakeSync) Collections() []config.CollectionConfig  { return f.cols }
func (f *fakeSync) InProgress() bool                        { return f.inProgress }

type fakePreview struct {
	records  []record.Record
	err      error
	stats    cache.Stats
	hasCache bool
	name     string
}

func (f *fakePreview) Preview(_ context.Context, name string) ([]record.Record, error) {
	f.name = name
	return f.records, f.err
}

func (f *fakePreview) CacheStats() (cache.Stats, bool) { return f.stats, f.hasCache }

type fakeHistory struct {
	outcomes   []recsync.Outcome
	err        error
	collection string
	limit      int
}

func (f *fakeHistory) List(_ context.Context, collection string, limit int) ([]recsync.Outcome, error) {
	f.collection, f.limit = collection, limit
	return f.outcomes, f.err
}

type fakeStore struct {
	pingErr   error
	states    []schema.SyncState
	statesErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }
func (f *fakeStore) SyncStates(context.Context) ([]schema.SyncState, error) {
	return f.states, f.statesErr
}

type fakeUpstream struct {
	pingErr error
	state   string
}

func (f *fakeUpstream) Ping(context.Context) error { return f.pingErr }
func (f *fakeUpstream) State() string              { return f.state }

type fakeGovernor struct{ n, limit int }

func (f fakeGovernor) Len() int   { return f.n }
func (f fakeGovernor) Limit() int { return f.limit }

// apiFixture holds the fakes behind one router.
type apiFixture struct {
	sync     *fakeSync
	preview  *fakePreview
	store    *fakeStore
	history  *fakeHistory
	upstream *fakeUpstream
	handler  http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		sync:     &fakeSync{},
		preview:  &fakePreview{},
		store:    &fakeStore{},
		history:  &fakeHistory{},
		upstream: &fakeUpstream{state: "closed"},
	}
	h := NewHandler(Dependencies{
		Sync:     f.sync,
		Preview:  f.preview,
		Store:    f.store,
		History:  f.history,
		Upstream: f.upstream,
		Governor: fakeGovernor{n: 3, limit: 10},
		Version:  "test",
	})
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	f.handler = NewRouter(h, mw, nil).SetupChi()
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors APIResponse with Data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) envelope {
	t.Helper()
	env := decode(t, rec)
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return env
}

func outcome(collection string, success bool) recsync.Outcome {
	o := recsync.Outcome{
		Collection: collection,
		Success:    success,
		Errors:     []string{},
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if success {
		o.RecordsSynced = 5
	} else {
		o.Errors = []string{"upstream returned HTTP 502"}
	}
	return o
}
