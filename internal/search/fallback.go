package search

import (
	"github.com/scrypster/orderscope/internal/query"
	"github.com/scrypster/orderscope/pkg/types"
)

// LocalFallback scans records for q, ignoring case, across the order
// number, customer name, email and both statuses.
func LocalFallback(q string, records []types.Record) []types.Record {
	q = NormalizeQuery(q)
	out := make([]types.Record, 0)
	for _, r := range records {
		if q == "" || fallbackMatch(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func fallbackMatch(r types.Record, q string) bool {
	for _, field := range []string{
		r.OrderNumber,
		r.CustomerName,
		r.Email,
		string(r.FinancialStatus),
		string(r.FulfillmentStatus),
	} {
		if query.ContainsFold(field, q) {
			return true
		}
	}
	return false
}
