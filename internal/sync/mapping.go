// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package sync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recordsync/internal/config"
	"github.com/tomtom215/recordsync/internal/record"
	"github.com/tomtom215/recordsync/internal/schema"
)

// Mapping turns normalized records into rows of a local table. The record
// id always becomes the id column; fields without a mapping are dropped.
type Mapping struct {
	spec   schema.TableSpec
	fields []string // upstream field for spec.Columns[i]
}

// NewMapping builds the mapping declared by a collection. Columns are
// ordered by name so the table layout does not depend on map iteration.
func NewMapping(col config.CollectionConfig) (*Mapping, error) {
	table := col.Table
	if table == "" {
		table = col.Name
	}

	type pair struct{ field, column string }
	pairs := make([]pair, 0, len(col.Fields))
	for field, column := range col.Fields {
		if field == record.IDField {
			continue
		}
		pairs = append(pairs, pair{field, column})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("collection %q: no fields mapped", col.Name)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].column < pairs[j].column })

	m := &Mapping{
		spec:   schema.TableSpec{Name: table, Columns: make([]schema.Column, 0, len(pairs))},
		fields: make([]string, 0, len(pairs)),
	}
	for _, p := range pairs {
		ct, err := schema.ParseColumnType(col.ColumnTypes[p.column])
		if err != nil {
			return nil, fmt.Errorf("collection %q column %q: %w", col.Name, p.column, err)
		}
		m.spec.Columns = append(m.spec.Columns, schema.Column{Name: p.column, Type: ct})
		m.fields = append(m.fields, p.field)
	}
	if err := m.spec.Validate(); err != nil {
		return nil, fmt.Errorf("collection %q: %w", col.Name, err)
	}
	return m, nil
}

// Table returns the table the mapping writes.
func (m *Mapping) Table() schema.TableSpec { return m.spec }

// Columns returns the row layout: id followed by the mapped columns.
func (m *Mapping) Columns() []string { return m.spec.ColumnNames() }

// Apply converts records into rows laid out as Columns.
func (m *Mapping) Apply(records []record.Record) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		id := r.ID()
		if id == "" {
			return nil, record.ErrMissingID
		}
		row := make([]any, 0, len(m.fields)+1)
		row = append(row, id)
		for i, field := range m.fields {
			v, _ := r.Get(field)
			cell, err := convertValue(v, m.spec.Columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("record %s field %s: %w", id, field, err)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// convertValue coerces v into the Go value stored for a column type.
// Strings that do not parse as the target type become NULL rather than
// failing the batch.
func convertValue(v record.Value, t schema.ColumnType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch t {
	case schema.ColumnNumber:
		switch v.Kind() {
		case record.KindNumber:
			n, _ := v.Num()
			return n, nil
		case record.KindString:
			s, _ := v.Str()
			return parseNumber(s), nil
		case record.KindBool:
			if b, _ := v.BoolVal(); b {
				return float64(1), nil
			}
			return float64(0), nil
		default:
			return nil, nil
		}
	case schema.ColumnBool:
		switch v.Kind() {
		case record.KindBool:
			b, _ := v.BoolVal()
			return b, nil
		case record.KindString:
			s, _ := v.Str()
			return parseBool(s), nil
		case record.KindNumber:
			n, _ := v.Num()
			return n != 0, nil
		default:
			return nil, nil
		}
	case schema.ColumnJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v.Text(), nil
	}
}

// parseNumber accepts plain and formatted numbers such as "1,234.50" or
// "$12". It returns nil when s is not numeric.
func parseNumber(s string) any {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return n
}

func parseBool(s string) any {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true
	case "false", "no", "n", "0", "off":
		return false
	default:
		return nil
	}
}
