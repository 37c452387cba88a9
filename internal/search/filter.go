package search

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/pkg/types"
)

// StructuredFilter is a set of facets evaluated by the remote index. Empty
// facets are ignored; values within a facet are alternatives.
type StructuredFilter struct {
	Statuses            []types.FinancialStatus   `json:"statuses,omitempty"`
	FulfillmentStatuses []types.FulfillmentStatus `json:"fulfillmentStatuses,omitempty"`
	MinTotal            *float64                  `json:"minTotal,omitempty"`
	MaxTotal            *float64                  `json:"maxTotal,omitempty"`
	From                *time.Time                `json:"from,omitempty"`
	To                  *time.Time                `json:"to,omitempty"`
	Tags                []string                  `json:"tags,omitempty"`
	Vendors             []string                  `json:"vendors,omitempty"`

	// Query narrows the faceted result by free text.
	Query string `json:"query,omitempty"`
}

// Active reports whether any facet is set.
func (f StructuredFilter) Active() bool {
	return len(f.Statuses) > 0 || len(f.FulfillmentStatuses) > 0 ||
		f.MinTotal != nil || f.MaxTotal != nil ||
		f.From != nil || f.To != nil ||
		len(f.Tags) > 0 || len(f.Vendors) > 0
}

// Expression renders the facets in the index's filter syntax, e.g.
//
//	(financial_status:"paid" OR financial_status:"pending") AND total_price >= 100
//
// Dates are compared as unix seconds on created_at_i.
func (f StructuredFilter) Expression() string {
	var groups []string
	add := func(attr string, values []string) {
		if len(values) == 0 {
			return
		}
		terms := make([]string, len(values))
		for i, v := range values {
			terms[i] = attr + ":" + strconv.Quote(v)
		}
		if len(terms) == 1 {
			groups = append(groups, terms[0])
			return
		}
		groups = append(groups, "("+strings.Join(terms, " OR ")+")")
	}

	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	add("financial_status", statuses)

	fulfillment := make([]string, len(f.FulfillmentStatuses))
	for i, s := range f.FulfillmentStatuses {
		fulfillment[i] = string(s)
	}
	add("fulfillment_status", fulfillment)

	add("tags", f.Tags)
	add("vendor", f.Vendors)

	if f.MinTotal != nil {
		groups = append(groups, "total_price >= "+strconv.FormatFloat(*f.MinTotal, 'f', -1, 64))
	}
	if f.MaxTotal != nil {
		groups = append(groups, "total_price <= "+strconv.FormatFloat(*f.MaxTotal, 'f', -1, 64))
	}
	if f.From != nil {
		groups = append(groups, fmt.Sprintf("created_at_i >= %d", f.From.Unix()))
	}
	if f.To != nil {
		groups = append(groups, fmt.Sprintf("created_at_i <= %d", f.To.Unix()))
	}

	return strings.Join(groups, " AND ")
}

// Matches evaluates the facets against r locally.
func (f StructuredFilter) Matches(r types.Record) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.FinancialStatus) {
		return false
	}
	if len(f.FulfillmentStatuses) > 0 && !slices.Contains(f.FulfillmentStatuses, r.FulfillmentStatus) {
		return false
	}
	if f.MinTotal != nil && r.Total < *f.MinTotal {
		return false
	}
	if f.MaxTotal != nil && r.Total > *f.MaxTotal {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	if len(f.Tags) > 0 && !anyEqualFold(f.Tags, r.Tags) {
		return false
	}
	if len(f.Vendors) > 0 && !anyEqualFold(f.Vendors, []string{r.Vendor}) {
		return false
	}
	if f.Query != "" && !fallbackMatch(r, NormalizeQuery(f.Query)) {
		return false
	}
	return true
}

// FilterSearch asks the index for records matching f. When the index is
// unavailable the facets are evaluated over local instead. An inactive
// filter returns local unchanged.
func (o *Orchestrator) FilterSearch(ctx context.Context, f StructuredFilter, local []types.Record) []types.Record {
	if !f.Active() {
		if f.Query != "" {
			return o.Search(ctx, f.Query, local)
		}
		return append([]types.Record(nil), local...)
	}

	hits, err := o.remoteSearch(ctx, remote.SearchRequest{
		Query:   NormalizeQuery(f.Query),
		Filters: f.Expression(),
	})
	if err != nil {
		o.log.Warn("remote filter search failed, filtering locally", "filters", f.Expression(), "error", err)
		out := make([]types.Record, 0)
		for _, r := range local {
			if f.Matches(r) {
				out = append(out, r)
			}
		}
		return out
	}
	return o.Reconcile(hits, local)
}

func anyEqualFold(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
