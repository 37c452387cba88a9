package view

import (
	"fmt"
	"strings"

	"github.com/scrypster/orderscope/internal/query"
	"github.com/scrypster/orderscope/pkg/types"
)

// FilterKind is the shape of a column filter.
type FilterKind string

const (
	FilterExact FilterKind = "exact"
	FilterRange FilterKind = "range"
	FilterMulti FilterKind = "multi"
)

// ColumnFilter narrows records on one column.
//
//   - exact: the column equals Value, ignoring case. For tags, any tag equals Value.
//   - range: the column lies within [Min, Max]; either bound may be empty.
//     Numbers compare numerically and dates by calendar day.
//   - multi: the column equals one of Values.
type ColumnFilter struct {
	Column string     `json:"column"`
	Kind   FilterKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Min    string     `json:"min,omitempty"`
	Max    string     `json:"max,omitempty"`
	Values []string   `json:"values,omitempty"`
}

// Validate resolves the column alias and checks the filter shape.
func (f *ColumnFilter) Validate() error {
	col, ok := query.LookupColumn(f.Column)
	if !ok || col == query.ColumnAll {
		return fmt.Errorf("unknown filter column %q", f.Column)
	}
	f.Column = col

	switch f.Kind {
	case FilterExact:
		if f.Value == "" {
			return fmt.Errorf("exact filter on %s needs a value", col)
		}
	case FilterRange:
		if f.Min == "" && f.Max == "" {
			return fmt.Errorf("range filter on %s needs a bound", col)
		}
		if query.KindOf(col) != query.KindNumber && query.KindOf(col) != query.KindDate {
			return fmt.Errorf("range filter on non-ordered column %s", col)
		}
	case FilterMulti:
		if len(f.Values) == 0 {
			return fmt.Errorf("multi filter on %s needs values", col)
		}
	default:
		return fmt.Errorf("unknown filter kind %q", f.Kind)
	}
	return nil
}

// Matches reports whether r passes the filter.
func (f ColumnFilter) Matches(r types.Record) bool {
	switch f.Kind {
	case FilterExact:
		return f.equals(r, f.Value)
	case FilterMulti:
		for _, v := range f.Values {
			if f.equals(r, v) {
				return true
			}
		}
		return false
	case FilterRange:
		if f.Min != "" && !query.Evaluate(r, f.condition(types.OpGreaterEq, f.Min)) {
			return false
		}
		if f.Max != "" && !query.Evaluate(r, f.condition(types.OpLessEq, f.Max)) {
			return false
		}
		return true
	}
	return true
}

func (f ColumnFilter) equals(r types.Record, v string) bool {
	return query.Evaluate(r, f.condition(types.OpEquals, strings.TrimSpace(v)))
}

func (f ColumnFilter) condition(op types.Operator, v string) types.ParsedCondition {
	return types.ParsedCondition{Column: f.Column, Operator: op, Value: v}
}

// ApplyFilters returns the records passing every filter.
func ApplyFilters(records []types.Record, filters []ColumnFilter) []types.Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		keep := true
		for _, f := range filters {
			if !f.Matches(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}
