// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/recordsync/internal/logging"
	"github.com/tomtom215/recordsync/internal/metrics"
	"github.com/tomtom215/recordsync/internal/record"
)

// DefaultPageDelay is the pause between pages of one collection.
const DefaultPageDelay = 100 * time.Millisecond

// PageGetter reads one page of an upstream object. Implemented by
// upstream.Client and upstream.BreakerClient.
type PageGetter interface {
	GetPage(ctx context.Context, object string, page, pageSize int) (*record.PageResponse, error)
}

// Admitter blocks until a request may be issued. Implemented by
// governor.Governor.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Fetcher reads every page of a collection in order.
type Fetcher struct {
	client    PageGetter
	governor  Admitter
	pageDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher. A negative pageDelay uses DefaultPageDelay.
func NewFetcher(client PageGetter, governor Admitter, pageDelay time.Duration) *Fetcher {
	if pageDelay < 0 {
		pageDelay = DefaultPageDelay
	}
	return &Fetcher{
		client:    client,
		governor:  governor,
		pageDelay: pageDelay,
		sleep:     sleepContext,
	}
}

// FetchAll returns the concatenated records of every page of object,
// starting at page 1 and stopping once the page number passes the
// upstream total. Any error discards the partial result.
//
// Cancellation is checked before each page; an in-flight page is allowed
// to finish but nothing after it is requested.
func (f *Fetcher) FetchAll(ctx context.Context, object string, pageSize int) ([]record.Record, error) {
	all := make([]record.Record, 0)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", object, page, err)
		}
		if err := f.governor.Admit(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", object, page, err)
		}

		resp, err := f.client.GetPage(ctx, object, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", object, page, err)
		}
		all = append(all, resp.Records...)
		metrics.UpstreamPagesFetched.WithLabelValues(object).Inc()

		logging.Ctx(ctx).Debug().
			Str("object", object).
			Int("page", page).
			Int("total_pages", resp.TotalPages).
			Int("records", len(resp.Records)).
			Msg("Fetched page")

		if page+1 > resp.TotalPages {
			return all, nil
		}
		if f.pageDelay > 0 {
			if err := f.sleep(ctx, f.pageDelay); err != nil {
				return nil, fmt.Errorf("fetch %s page %d: %w", object, page+1, err)
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
