// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"strings"
	"time"

	"github.com/tomtom215/recordsync/internal/record"
)

// InvalidRecord is a record that failed required-field validation.
type InvalidRecord struct {
	Record        record.Record
	MissingFields []string
}

// ValidationResult partitions a batch by required-field presence.
type ValidationResult struct {
	Valid   []record.Record
	Invalid []InvalidRecord
}

// Deduplicate keeps the first record for each id and reports how many
// later duplicates were dropped. Duplicates are not merged. Records with
// an empty id are always kept.
func Deduplicate(records []record.Record) ([]record.Record, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		id := r.ID()
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// Validate splits records into those carrying every required field and
// those missing at least one. A field is missing when absent, null or an
// empty string. MissingFields follows the order of required.
func Validate(records []record.Record, required []string) ValidationResult {
	result := ValidationResult{
		Valid:   make([]record.Record, 0, len(records)),
		Invalid: make([]InvalidRecord, 0),
	}
	for _, r := range records {
		var missing []string
		for _, field := range required {
			v, ok := r.Get(field)
			if !ok || v.IsBlank() {
				missing = append(missing, field)
			}
		}
		if len(missing) == 0 {
			result.Valid = append(result.Valid, r)
			continue
		}
		result.Invalid = append(result.Invalid, InvalidRecord{Record: r, MissingFields: missing})
	}
	return result
}

// Canonicalize replaces string values of field that match a key of table,
// ignoring case, with the mapped canonical form. Unmatched and non-string
// values are left untouched. Input records are not modified.
func Canonicalize(records []record.Record, field string, table map[string]string) []record.Record {
	lookup := make(map[string]string, len(table))
	for k, v := range table {
		lookup[strings.ToLower(k)] = v
	}
	return rewriteField(records, field, func(s string) (string, bool) {
		canonical, ok := lookup[strings.ToLower(s)]
		return canonical, ok
	})
}

// CanonicalizeDates rewrites string values of field parsed by any of
// layouts into the out layout. Unparseable values are left untouched.
func CanonicalizeDates(records []record.Record, field string, layouts []string, out string) []record.Record {
	return rewriteField(records, field, func(s string) (string, bool) {
		s = strings.TrimSpace(s)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(out), true
			}
		}
		return "", false
	})
}

// FilterByAllowlist drops records whose field value is not exactly one of
// allowed. Scalars compare by their text form, case-sensitively. Records
// without the field, or with a null or composite value, are dropped.
func FilterByAllowlist(records []record.Record, field string, allowed []string) ([]record.Record, int) {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	kept := make([]record.Record, 0, len(records))
	for _, r := range records {
		v, ok := r.Get(field)
		if !ok {
			continue
		}
		switch v.Kind() {
		case record.KindString, record.KindNumber, record.KindBool:
			if _, allowedValue := set[v.Text()]; allowedValue {
				kept = append(kept, r)
			}
		case record.KindNull, record.KindMap, record.KindArray:
			// dropped
		}
	}
	return kept, len(records) - len(kept)
}

// rewriteField applies fn to the string value of field in each record,
// cloning only the records it changes.
func rewriteField(records []record.Record, field string, fn func(string) (string, bool)) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = r
		v, ok := r.Get(field)
		if !ok {
			continue
		}
		switch v.Kind() {
		case record.KindString:
			s, _ := v.Str()
			replacement, matched := fn(s)
			if !matched || replacement == s {
				continue
			}
			c := r.Clone()
			c[field] = record.String(replacement)
			out[i] = c
		case record.KindNull, record.KindNumber, record.KindBool, record.KindMap, record.KindArray:
			// only strings are canonicalized
		}
	}
	return out
}
