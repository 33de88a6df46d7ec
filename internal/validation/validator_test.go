// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package validation

import (
	"strings"
	"testing"
)

type sampleConfig struct {
	URL      string   `koanf:"url" validate:"required,url"`
	PageSize int      `koanf:"page_size" validate:"gte=1,lte=1000"`
	Table    string   `koanf:"table" validate:"omitempty,identifier"`
	Format   string   `json:"format" validate:"omitempty,oneof=json console"`
	Columns  []string `koanf:"columns" validate:"dive,identifier"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      sampleConfig
		wantFields []string
	}{
		{
			name:  "valid",
			input: sampleConfig{URL: "https://api.example.com", PageSize: 1000, Table: "devices", Columns: []string{"county"}},
		},
		{
			name:       "missing url",
			input:      sampleConfig{PageSize: 10},
			wantFields: []string{"url"},
		},
		{
			name:       "page size above limit",
			input:      sampleConfig{URL: "https://api.example.com", PageSize: 5000},
			wantFields: []string{"page_size"},
		},
		{
			name:       "bad identifiers",
			input:      sampleConfig{URL: "https://api.example.com", PageSize: 1, Table: "drop table;", Columns: []string{"ok", "1bad"}},
			wantFields: []string{"table", "columns[1]"},
		},
		{
			name:       "json tag used for names",
			input:      sampleConfig{URL: "https://api.example.com", PageSize: 1, Format: "xml"},
			wantFields: []string{"format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if len(tt.wantFields) == 0 {
				if verr != nil {
					t.Fatalf("expected valid, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			got := make([]string, 0, len(verr.Errors()))
			for _, e := range verr.Errors() {
				got = append(got, e.Field())
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("failed fields = %v, want %v", got, tt.wantFields)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	verr := ValidateStruct(&sampleConfig{PageSize: 0})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "url is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("expected fields detail")
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := map[string]bool{
		"devices":      true,
		"_private":     true,
		"field_12":     true,
		"":             false,
		"9lives":       false,
		"has-dash":     false,
		`quote"d`:      false,
		"with space":   false,
		strings.Repeat("a", 64): false,
	}
	for in, want := range tests {
		if got := IsIdentifier(in); got != want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", in, got, want)
		}
	}
}
