// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// IDField is the key of the identifier the upstream store assigns to every record.
const IDField = "id"

// ErrMissingID is returned when a decoded record has no string id.
var ErrMissingID = errors.New("record has no string id")

// Record is one upstream row.
type Record map[string]Value

// New builds a Record from plain Go values. It panics on unsupported types
// and is meant for tests and fixtures.
func New(fields map[string]any) Record {
	r := make(Record, len(fields))
	for k, raw := range fields {
		v, err := FromAny(raw)
		if err != nil {
			panic(fmt.Sprintf("record.New: field %q: %v", k, err))
		}
		r[k] = v
	}
	return r
}

// ID returns the record's id, or "" when absent or not a string.
func (r Record) ID() string {
	s, _ := r[IDField].Str()
	return s
}

// Get returns the value of field and whether it was present.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r[field]
	return v, ok
}

// Clone returns a shallow copy. Values are immutable so sharing them is safe.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether both records hold the same fields and values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		w, ok := o[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Record, len(raw))
	for k, x := range raw {
		v, err := FromAny(x)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	*r = out
	return nil
}

// PageResponse is one page of a collection read.
type PageResponse struct {
	Records      []Record `json:"records"`
	CurrentPage  int      `json:"current_page"`
	TotalPages   int      `json:"total_pages"`
	TotalRecords int      `json:"total_records"`
}

type pageWire struct {
	Records      []Record `json:"records"`
	CurrentPage  flexInt  `json:"current_page"`
	TotalPages   flexInt  `json:"total_pages"`
	TotalRecords flexInt  `json:"total_records"`
}

// UnmarshalJSON accepts page counters encoded as numbers or numeric strings
// and rejects records without a string id.
func (p *PageResponse) UnmarshalJSON(data []byte) error {
	var w pageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Records == nil {
		w.Records = []Record{}
	}
	for i, rec := range w.Records {
		if rec.ID() == "" {
			return fmt.Errorf("record %d: %w", i, ErrMissingID)
		}
	}
	*p = PageResponse{
		Records:      w.Records,
		CurrentPage:  int(w.CurrentPage),
		TotalPages:   int(w.TotalPages),
		TotalRecords: int(w.TotalRecords),
	}
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid page counter %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
