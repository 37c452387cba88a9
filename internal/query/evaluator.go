package query

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/scrypster/orderscope/pkg/types"
)

const (
	dayLayout     = "2006-01-02"
	displayLayout = "Jan 2, 2006"
)

// dateOnlyLayouts parse values that name a calendar day.
var dateOnlyLayouts = []string{dayLayout, displayLayout, "01/02/2006"}

// timestampLayouts parse values that carry a time of day.
var timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// Matches folds conds over r left to right. Each condition is combined
// with the running result by its connector: OR for ConnectorOr, AND
// otherwise. No conditions match everything.
func Matches(r types.Record, conds []types.ParsedCondition) bool {
	if len(conds) == 0 {
		return true
	}
	result := Evaluate(r, conds[0])
	for _, c := range conds[1:] {
		if c.Connector == types.ConnectorOr {
			result = result || Evaluate(r, c)
		} else {
			result = result && Evaluate(r, c)
		}
	}
	return result
}

// Apply returns the records matching conds, in their original order.
func Apply(records []types.Record, conds []types.ParsedCondition) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if Matches(r, conds) {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate applies a single condition to r.
func Evaluate(r types.Record, c types.ParsedCondition) bool {
	switch KindOf(c.Column) {
	case KindAll:
		return evalAll(r, c)
	case KindDate:
		return evalDate(dateOf(r, c.Column), c)
	case KindNumber:
		v, _ := NumberValue(r, c.Column)
		return evalNumber(v, c)
	case KindArray:
		return evalArray(r.Tags, c)
	default:
		return evalString(StringValue(r, c.Column), c)
	}
}

// SearchText is the haystack for the "all" column.
func SearchText(r types.Record) string {
	parts := []string{
		r.OrderNumber,
		r.CustomerName,
		r.Email,
		string(r.FinancialStatus),
		string(r.FulfillmentStatus),
		strings.Join(r.Tags, " "),
		r.Vendor,
		formatNumber(r.Total),
		renderDate(r.CreatedAt),
		renderDate(r.UpdatedAt),
	}
	return strings.Join(parts, " ")
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

func evalAll(r types.Record, c types.ParsedCondition) bool {
	found := ContainsFold(SearchText(r), c.Value)
	if c.Operator == types.OpNotEquals {
		return !found
	}
	return found
}

func evalString(v string, c types.ParsedCondition) bool {
	switch c.Operator {
	case types.OpEquals:
		return fold(v) == fold(c.Value)
	case types.OpNotEquals:
		return fold(v) != fold(c.Value)
	default:
		return ContainsFold(v, c.Value)
	}
}

func evalArray(items []string, c types.ParsedCondition) bool {
	want := fold(c.Value)
	switch c.Operator {
	case types.OpEquals, types.OpNotEquals:
		found := false
		for _, item := range items {
			if fold(item) == want {
				found = true
				break
			}
		}
		if c.Operator == types.OpNotEquals {
			return !found
		}
		return found
	default:
		for _, item := range items {
			if strings.Contains(fold(item), want) {
				return true
			}
		}
		return false
	}
}

func evalNumber(v float64, c types.ParsedCondition) bool {
	if c.Operator == types.OpContains {
		return strings.Contains(formatNumber(v)+" "+strconv.FormatFloat(v, 'f', 2, 64), strings.TrimSpace(c.Value))
	}
	want, ok := parseNumber(c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case types.OpEquals:
		return v == want
	case types.OpNotEquals:
		return v != want
	case types.OpLess:
		return v < want
	case types.OpLessEq:
		return v <= want
	case types.OpGreater:
		return v > want
	case types.OpGreaterEq:
		return v >= want
	}
	return false
}

func evalDate(t time.Time, c types.ParsedCondition) bool {
	if c.Operator == types.OpContains {
		return ContainsFold(renderDate(t), c.Value)
	}
	want, dateOnly, ok := parseDate(c.Value)
	if !ok {
		return false
	}

	switch c.Operator {
	case types.OpEquals:
		return sameDay(t, want)
	case types.OpNotEquals:
		return !sameDay(t, want)
	}

	have := t.UTC()
	if dateOnly {
		have = truncateDay(have)
		want = truncateDay(want)
	}
	switch c.Operator {
	case types.OpLess:
		return have.Before(want)
	case types.OpLessEq:
		return !have.After(want)
	case types.OpGreater:
		return have.After(want)
	case types.OpGreaterEq:
		return !have.Before(want)
	}
	return false
}

func dateOf(r types.Record, column string) time.Time {
	if column == ColumnUpdatedAt {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// parseDate reports whether the value named a whole day or an instant.
func parseDate(s string) (t time.Time, dateOnly, ok bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, true
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), false, true
		}
	}
	return time.Time{}, false, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func renderDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	return t.Format(dayLayout) + " " + t.Format(displayLayout)
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// fold returns a caseless form of s. Casers hold state, so each call gets
// its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
