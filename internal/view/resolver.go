package view

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/query"
	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/pkg/types"
)

// ErrInvalidState reports a malformed view state.
var ErrInvalidState = errors.New("invalid view state")

// State is what the console currently has active.
type State struct {
	// Filter is the structured facet filter.
	Filter search.StructuredFilter `json:"filter"`

	// Search is the free-text search box.
	Search string `json:"search,omitempty"`

	// Query is the advanced query language box.
	Query string `json:"query,omitempty"`

	// Columns narrow whichever result set was selected.
	Columns []ColumnFilter `json:"columns,omitempty"`
}

// Result is a resolved view.
type Result struct {
	Source     SourceTag               `json:"source"`
	Records    []types.Record          `json:"records"`
	Conditions []types.ParsedCondition `json:"conditions,omitempty"`
	Fallback   bool                    `json:"fallback,omitempty"` // query had no conditions, substring used
}

// Resolver produces the records for a State.
type Resolver struct {
	search *search.Orchestrator
	log    *slog.Logger
}

// NewResolver creates a resolver backed by orchestrator.
func NewResolver(orchestrator *search.Orchestrator, log *slog.Logger) *Resolver {
	return &Resolver{search: orchestrator, log: logger.OrDefault(log)}
}

// Resolve selects the authoritative result set for st, built from base
// where it is local, then applies the column filters.
func (r *Resolver) Resolve(ctx context.Context, st State, base []types.Record) (*Result, error) {
	for i := range st.Columns {
		if err := st.Columns[i].Validate(); err != nil {
			return nil, errors.Join(ErrInvalidState, err)
		}
	}

	searchActive := strings.TrimSpace(st.Search) != ""
	queryActive := strings.TrimSpace(st.Query) != ""
	res := &Result{Source: SelectSource(st.Filter.Active(), searchActive, queryActive)}

	switch res.Source {
	case SourceStructuredFilter:
		res.Records = r.search.FilterSearch(ctx, st.Filter, base)
	case SourceRemoteSearch:
		res.Records = r.search.Search(ctx, st.Search, base)
	case SourceLocalQuery:
		res.Conditions = query.Parse(st.Query)
		if query.Valid(res.Conditions) {
			res.Records = query.Apply(base, res.Conditions)
		} else {
			r.log.Debug("query produced no conditions, using substring search", "query", st.Query)
			res.Fallback = true
			res.Records = search.LocalFallback(st.Query, base)
		}
	default:
		res.Records = base
	}

	res.Records = ApplyFilters(res.Records, st.Columns)
	if res.Records == nil {
		res.Records = []types.Record{}
	}
	return res, nil
}
