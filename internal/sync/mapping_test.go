// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/schema"
)

func permitsCollection() config.CollectionConfig {
	return config.CollectionConfig{
		Name:  "permits",
		Table: "permits",
		Fields: map[string]string{
			"id":      "ignored",
			"field_1": "county",
			"field_2": "amount",
			"field_3": "approved",
			"field_4": "meta",
			"field_5": "status",
		},
		ColumnTypes: map[string]string{
			"amount":   "number",
			"approved": "bool",
			"meta":     "json",
		},
	}
}

func TestNewMappingOrdersColumns(t *testing.T) {
	m, err := NewMapping(permitsCollection())
	if err != nil {
		t.Fatalf("NewMapping() error = %v", err)
	}
	if got, want := m.Columns(), []string{"id", "amount", "approved", "county", "meta", "status"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Columns() = %v, want %v", got, want)
	}
	spec := m.Table()
	if spec.Name != "permits" {
		t.Errorf("table = %q, want permits", spec.Name)
	}
	types := map[string]schema.ColumnType{}
	for _, c := range spec.Columns {
		types[c.Name] = c.Type
	}
	if types["amount"] != schema.ColumnNumber || types["county"] != schema.ColumnText {
		t.Errorf("column types = %v", types)
	}
}

func TestNewMappingErrors(t *testing.T) {
	tests := []struct {
		name string
		col  config.CollectionConfig
	}{
		{"no fields", config.CollectionConfig{Name: "x", Fields: map[string]string{"id": "id"}}},
		{"bad type", config.CollectionConfig{
			Name:        "x",
			Fields:      map[string]string{"f": "c"},
			ColumnTypes: map[string]string{"c": "date"},
		}},
		{"reserved column", config.CollectionConfig{Name: "x", Fields: map[string]string{"f": "synced_at"}}},
		{"bad identifier", config.CollectionConfig{Name: "x", Fields: map[string]string{"f": "drop table"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMapping(tt.col); err == nil {
				t.Error("NewMapping() expected error")
			}
		})
	}
}

func TestMappingApply(t *testing.T) {
	m, err := NewMapping(permitsCollection())
	if err != nil {
		t.Fatalf("NewMapping() error = %v", err)
	}
	records := []record.Record{
		record.New(map[string]any{
			"id":      "r1",
			"field_1": "Wake",
			"field_2": "$1,250.50",
			"field_3": "Yes",
			"field_4": map[string]any{"k": "v"},
			"field_5": "ready",
		}),
		record.New(map[string]any{
			"id":      "r2",
			"field_2": "n/a",
			"field_3": float64(0),
			"field_5": nil,
		}),
	}

	rows, err := m.Apply(records)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// id, amount, approved, county, meta, status
	want := [][]any{
		{"r1", 1250.5, true, "Wake", `{"k":"v"}`, "ready"},
		{"r2", nil, false, nil, nil, nil},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Apply() = %#v, want %#v", rows, want)
	}
}

func TestMappingApplyMissingID(t *testing.T) {
	m, err := NewMapping(permitsCollection())
	if err != nil {
		t.Fatalf("NewMapping() error = %v", err)
	}
	_, err = m.Apply([]record.Record{record.New(map[string]any{"field_1": "Wake"})})
	if !errors.Is(err, record.ErrMissingID) {
		t.Errorf("Apply() error = %v, want ErrMissingID", err)
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name string
		in   record.Value
		typ  schema.ColumnType
		want any
	}{
		{"text from number", record.Number(42), schema.ColumnText, "42"},
		{"text from bool", record.Bool(true), schema.ColumnText, "true"},
		{"number from string", record.String(" 3.5 "), schema.ColumnNumber, 3.5},
		{"number from bool", record.Bool(true), schema.ColumnNumber, float64(1)},
		{"number from blank", record.String(""), schema.ColumnNumber, nil},
		{"bool from no", record.String("NO"), schema.ColumnBool, false},
		{"bool from junk", record.String("maybe"), schema.ColumnBool, nil},
		{"bool from number", record.Number(2), schema.ColumnBool, true},
		{"json array", record.Array(record.String("a"), record.Number(1)), schema.ColumnJSON, `["a",1]`},
		{"null", record.Null(), schema.ColumnText, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertValue(tt.in, tt.typ)
			if err != nil {
				t.Fatalf("convertValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("convertValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
