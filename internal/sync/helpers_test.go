// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/schema"
)

// recs builds records with the given ids.
func recs(ids ...string) []record.Record {
	out := make([]record.Record, len(ids))
	for i, id := range ids {
		out[i] = record.New(map[string]any{"id": id})
	}
	return out
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

// pagedClient serves fixed pages per object and records every call.
type pagedClient struct {
	mu    sync.Mutex
	pages map[string][][]record.Record
	calls []string // "object:page"

	// failOn returns an error for a call number (0-based) when set.
	failOn func(call int, object string, page int) error
	// onCall runs after a call is recorded.
	onCall func(object string, page int)
	delay  time.Duration
}

func newPagedClient() *pagedClient {
	return &pagedClient{pages: make(map[string][][]record.Record)}
}

func (c *pagedClient) withPages(object string, pages ...[]record.Record) *pagedClient {
	c.pages[object] = pages
	return c
}

func (c *pagedClient) GetPage(ctx context.Context, object string, page, pageSize int) (*record.PageResponse, error) {
	c.mu.Lock()
	call := len(c.calls)
	c.calls = append(c.calls, fmt.Sprintf("%s:%d", object, page))
	failOn, onCall := c.failOn, c.onCall
	pages, ok := c.pages[object]
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if onCall != nil {
		onCall(object, page)
	}
	if failOn != nil {
		if err := failOn(call, object, page); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("no such object %q", object)
	}
	resp := &record.PageResponse{
		Records:     []record.Record{},
		CurrentPage: page,
		TotalPages:  len(pages),
	}
	if page >= 1 && page <= len(pages) {
		resp.Records = pages[page-1]
	}
	for _, p := range pages {
		resp.TotalRecords += len(p)
	}
	return resp, nil
}

func (c *pagedClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// countingAdmitter admits immediately and counts calls.
type countingAdmitter struct {
	mu sync.Mutex
	n  int
}

func (a *countingAdmitter) Admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
	return nil
}

func (a *countingAdmitter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

// memStore is an in-memory Store keyed by table then id.
type memStore struct {
	mu      sync.Mutex
	tables  map[string]schema.TableSpec
	rows    map[string]map[string][]any
	failFor map[string]error
	panicOn string
	states  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		tables:  make(map[string]schema.TableSpec),
		rows:    make(map[string]map[string][]any),
		failFor: make(map[string]error),
		states:  make(map[string]int),
	}
}

func (s *memStore) EnsureTable(ctx context.Context, spec schema.TableSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[spec.Name] = spec
	if s.rows[spec.Name] == nil {
		s.rows[spec.Name] = make(map[string][]any)
	}
	return nil
}

func (s *memStore) Upsert(ctx context.Context, table string, columns []string, rows [][]any) (int, error) {
	if table == s.panicOn {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[table]; err != nil {
		return 0, err
	}
	for _, row := range rows {
		s.rows[table][row[0].(string)] = row
	}
	return len(rows), nil
}

func (s *memStore) RecordSyncState(ctx context.Context, collection string, at time.Time, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[collection] = rows
	return nil
}

func (s *memStore) ids(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows[table]))
	for id := range s.rows[table] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *memStore) row(table, id string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[table][id]
}

// noSleep records requested sleeps without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.delays = append(n.delays, d)
	n.mu.Unlock()
	return ctx.Err()
}

func (n *noSleep) Delays() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]time.Duration, len(n.delays))
	copy(out, n.delays)
	return out
}
