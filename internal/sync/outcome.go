// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"time"
)

// Outcome is the result of syncing one collection. It is built once at the
// end of a sync and not modified afterwards.
type Outcome struct {
	Collection    string    `json:"collection"`
	Success       bool      `json:"success"`
	RecordsSynced int       `json:"records_synced"`
	Errors        []string  `json:"errors"`
	Timestamp     time.Time `json:"timestamp"`

	RunID             string          `json:"run_id,omitempty"`
	DurationMS        int64           `json:"duration_ms"`
	RecordsFetched    int             `json:"records_fetched"`
	DuplicatesDropped int             `json:"duplicates_dropped"`
	FilteredOut       int             `json:"filtered_out"`
	InvalidRecords    []InvalidReport `json:"invalid_records,omitempty"`
}

// CollectionName lets the outcome feed route o to subscribers of its
// collection.
func (o Outcome) CollectionName() string {
	return o.Collection
}

// InvalidReport names a record that failed required-field validation.
type InvalidReport struct {
	ID            string   `json:"id"`
	MissingFields []string `json:"missing_fields"`
}

// Duration returns the sync duration.
func (o Outcome) Duration() time.Duration {
	return time.Duration(o.DurationMS) * time.Millisecond
}

// AllSucceeded reports whether every outcome succeeded. An empty run
// counts as success.
func AllSucceeded(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// Failed returns the outcomes that did not succeed, in order.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

func invalidReports(invalid []InvalidRecord) []InvalidReport {
	if len(invalid) == 0 {
		return nil
	}
	out := make([]InvalidReport, len(invalid))
	for i, inv := range invalid {
		out[i] = InvalidReport{ID: inv.Record.ID(), MissingFields: inv.MissingFields}
	}
	return out
}
