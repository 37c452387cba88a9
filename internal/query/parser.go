package query

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/scrypster/orderscope/pkg/types"
)

var (
	quotedColumnRe = regexp.MustCompile(`^([A-Za-z_]+)\s*:\s*"(.*)"$`)
	columnRe       = regexp.MustCompile(`^([A-Za-z_]+)\s*:\s*(.+)$`)
	comparisonRe   = regexp.MustCompile(`^([A-Za-z_]+)\s*(<=|>=|!=|<|>|=)\s*(.+)$`)
	bareCompareRe  = regexp.MustCompile(`^(<=|>=|!=|<|>|=)\s*(-?\d+(?:\.\d+)?)$`)
	bareIntegerRe  = regexp.MustCompile(`^\d+$`)
	dateLiteralRe  = regexp.MustCompile(`^(<=|>=|!=|<|>|=)?\s*(\d{4}-\d{2}-\d{2})$`)
)

// segment is a piece of the query between connectors.
type segment struct {
	text      string
	connector types.Connector // joins this segment to the ones before it
}

// Parse turns a query into conditions. Segments that cannot be parsed,
// including those naming unknown columns, are dropped. An empty result means
// the query had no usable conditions; it is never an error.
//
// The connector of each condition joins it to the result of the conditions
// before it. The first condition always has ConnectorNone.
func Parse(text string) []types.ParsedCondition {
	var conds []types.ParsedCondition
	for _, seg := range splitSegments(text) {
		cond, ok := parseSegment(seg.text)
		if !ok {
			continue
		}
		cond.Connector = seg.connector
		if len(conds) == 0 {
			cond.Connector = types.ConnectorNone
		}
		conds = append(conds, cond)
	}
	return conds
}

// Valid reports whether a parsed query produced at least one condition.
func Valid(conds []types.ParsedCondition) bool {
	return len(conds) > 0
}

// splitSegments splits on whitespace-delimited AND / OR outside of double
// quotes, in any letter case.
func splitSegments(text string) []segment {
	var (
		segs    []segment
		start   int
		inQuote bool
		pending = types.ConnectorNone
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote || !isSpace(ch) {
			continue
		}
		conn, next := connectorAt(text, i)
		if conn == types.ConnectorNone {
			continue
		}
		segs = append(segs, segment{text: strings.TrimSpace(text[start:i]), connector: pending})
		pending = conn
		start = next
		i = next - 1
	}
	segs = append(segs, segment{text: strings.TrimSpace(text[start:]), connector: pending})
	return segs
}

// connectorAt checks for " AND " or " OR " starting at the whitespace at i.
// It returns the connector and the index just past its trailing whitespace.
func connectorAt(text string, i int) (types.Connector, int) {
	j := i
	for j < len(text) && isSpace(text[j]) {
		j++
	}
	for _, word := range []types.Connector{types.ConnectorAnd, types.ConnectorOr} {
		end := j + len(word)
		if end >= len(text) || !isSpace(text[end]) {
			continue
		}
		if !strings.EqualFold(text[j:end], string(word)) {
			continue
		}
		for end < len(text) && isSpace(text[end]) {
			end++
		}
		return word, end
	}
	return types.ConnectorNone, i
}

func parseSegment(s string) (types.ParsedCondition, bool) {
	if s == "" {
		return types.ParsedCondition{}, false
	}

	if m := quotedColumnRe.FindStringSubmatch(s); m != nil {
		return columnCondition(m[1], types.OpContains, m[2])
	}
	if m := columnRe.FindStringSubmatch(s); m != nil {
		return columnCondition(m[1], types.OpContains, unquote(m[2]))
	}
	if m := comparisonRe.FindStringSubmatch(s); m != nil {
		return columnCondition(m[1], types.Operator(m[2]), unquote(m[3]))
	}
	if m := bareCompareRe.FindStringSubmatch(s); m != nil {
		return types.ParsedCondition{Column: ColumnTotal, Operator: types.Operator(m[1]), Value: m[2]}, true
	}
	if bareIntegerRe.MatchString(s) {
		return types.ParsedCondition{Column: ColumnTotal, Operator: types.OpEquals, Value: s}, true
	}
	if m := dateLiteralRe.FindStringSubmatch(s); m != nil {
		op := types.Operator(m[1])
		if op == "" {
			op = types.OpEquals
		}
		return types.ParsedCondition{Column: ColumnCreatedAt, Operator: op, Value: m[2]}, true
	}

	value := unquote(s)
	if value == "" {
		return types.ParsedCondition{}, false
	}
	return types.ParsedCondition{Column: ColumnAll, Operator: types.OpContains, Value: value}, true
}

func columnCondition(name string, op types.Operator, value string) (types.ParsedCondition, bool) {
	col, ok := LookupColumn(name)
	if !ok {
		return types.ParsedCondition{}, false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return types.ParsedCondition{}, false
	}
	return types.ParsedCondition{Column: col, Operator: op, Value: value}, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isSpace(b byte) bool {
	return unicode.IsSpace(rune(b))
}
