// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package record

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

func TestValue_Kinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value Value
		kind  Kind
		blank bool
		text  string
	}{
		{"null", Null(), KindNull, true, ""},
		{"zero value", Value{}, KindNull, true, ""},
		{"empty string", String(""), KindString, true, ""},
		{"string", String("Wake"), KindString, false, "Wake"},
		{"integer number", Number(42), KindNumber, false, "42"},
		{"fraction", Number(2.5), KindNumber, false, "2.5"},
		{"bool", Bool(true), KindBool, false, "true"},
		{"map", Map(map[string]Value{"a": Number(1)}), KindMap, false, `{"a":1}`},
		{"array", Array(String("x"), Null()), KindArray, false, `["x",null]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.value.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", tt.value.Kind(), tt.kind)
			}
			if tt.value.IsBlank() != tt.blank {
				t.Errorf("IsBlank() = %v, want %v", tt.value.IsBlank(), tt.blank)
			}
			if got := tt.value.Text(); got != tt.text {
				t.Errorf("Text() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	a := Map(map[string]Value{"tags": Array(String("x"), Number(1))})
	b := Map(map[string]Value{"tags": Array(String("x"), Number(1))})
	c := Map(map[string]Value{"tags": Array(String("x"), Number(2))})

	if !a.Equal(b) {
		t.Error("expected equal nested values")
	}
	if a.Equal(c) {
		t.Error("expected different nested values")
	}
	if String("1").Equal(Number(1)) {
		t.Error("values of different kinds must not be equal")
	}
}

func TestRecord_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var r Record
	data := `{"id":"abc","county":"wake","count":3,"active":false,"note":null,"tags":["a"],"addr":{"zip":"27601"}}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if r.ID() != "abc" {
		t.Errorf("ID() = %q", r.ID())
	}
	if s, ok := r["county"].Str(); !ok || s != "wake" {
		t.Errorf("county = %#v", r["county"])
	}
	if n, ok := r["count"].Num(); !ok || n != 3 {
		t.Errorf("count = %#v", r["count"])
	}
	if b, ok := r["active"].BoolVal(); !ok || b {
		t.Errorf("active = %#v", r["active"])
	}
	if !r["note"].IsNull() {
		t.Errorf("note = %#v, want null", r["note"])
	}
	if arr, ok := r["tags"].ArrayVal(); !ok || len(arr) != 1 {
		t.Errorf("tags = %#v", r["tags"])
	}
	if m, ok := r["addr"].MapVal(); !ok || !m["zip"].Equal(String("27601")) {
		t.Errorf("addr = %#v", r["addr"])
	}
}

func TestRecord_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	in := New(map[string]any{"id": "x", "n": 1.5, "nested": map[string]any{"ok": true}, "none": nil})
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !in.Equal(out) {
		t.Errorf("round trip mismatch: %s", data)
	}
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := New(map[string]any{"id": "x", "county": "wake"})
	cp := orig.Clone()
	cp["county"] = String("Wake")

	if s, _ := orig["county"].Str(); s != "wake" {
		t.Errorf("original mutated: %q", s)
	}
}

func TestPageResponse_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantErr   error
		wantPages int
		wantCur   int
		wantTotal int
		wantLen   int
	}{
		{
			name:      "numeric counters",
			body:      `{"records":[{"id":"a"},{"id":"b"}],"current_page":1,"total_pages":3,"total_records":5}`,
			wantPages: 3, wantCur: 1, wantTotal: 5, wantLen: 2,
		},
		{
			name:      "string counters",
			body:      `{"records":[{"id":"a"}],"current_page":"2","total_pages":"2","total_records":"3"}`,
			wantPages: 2, wantCur: 2, wantTotal: 3, wantLen: 1,
		},
		{
			name:      "empty collection",
			body:      `{"records":[],"current_page":1,"total_pages":0,"total_records":0}`,
			wantPages: 0, wantCur: 1, wantTotal: 0, wantLen: 0,
		},
		{
			name:    "record without id",
			body:    `{"records":[{"name":"x"}],"current_page":1,"total_pages":1,"total_records":1}`,
			wantErr: ErrMissingID,
		},
		{
			name:    "numeric id",
			body:    `{"records":[{"id":7}],"current_page":1,"total_pages":1,"total_records":1}`,
			wantErr: ErrMissingID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var p PageResponse
			err := json.Unmarshal([]byte(tt.body), &p)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.TotalPages != tt.wantPages || p.CurrentPage != tt.wantCur || p.TotalRecords != tt.wantTotal {
				t.Errorf("counters = %d/%d/%d", p.CurrentPage, p.TotalPages, p.TotalRecords)
			}
			if len(p.Records) != tt.wantLen {
				t.Errorf("len(Records) = %d, want %d", len(p.Records), tt.wantLen)
			}
			if p.Records == nil {
				t.Error("Records must not be nil")
			}
		})
	}
}
