// Package search runs free-text and faceted searches against the remote
// index and maps the hits back onto known order records. A search never
// fails outward: when the index cannot be reached or answers garbage, the
// records at hand are scanned locally instead.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/pkg/types"
)

// DefaultHitsPerPage is the number of hits requested in the single page
// fetched per search.
const DefaultHitsPerPage = 1000

// Options configures an Orchestrator.
type Options struct {
	// DatasetID scopes every request to the dataset the records came from.
	DatasetID string

	// HitsPerPage bounds the hits requested. Default: 1000
	HitsPerPage int

	Logger *slog.Logger

	// NewID generates ids for synthesized records that carry neither an
	// object id nor an order number. Default: uuid.NewString
	NewID func() string

	// Clock stamps synthesized records with no creation time. Default: time.Now
	Clock func() time.Time
}

// Orchestrator coordinates remote searches and their local fallback.
type Orchestrator struct {
	searcher remote.Searcher
	opts     Options
	log      *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil searcher makes every search
// take the local path.
func NewOrchestrator(searcher remote.Searcher, opts Options) *Orchestrator {
	if opts.HitsPerPage <= 0 {
		opts.HitsPerPage = DefaultHitsPerPage
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{searcher: searcher, opts: opts, log: logger.OrDefault(opts.Logger)}
}

// Search runs query against the remote index and reconciles the hits with
// local. An empty query returns local unchanged.
func (o *Orchestrator) Search(ctx context.Context, query string, local []types.Record) []types.Record {
	q := NormalizeQuery(query)
	if q == "" {
		return append([]types.Record(nil), local...)
	}

	hits, err := o.remoteSearch(ctx, remote.SearchRequest{Query: q})
	if err != nil {
		o.log.Warn("remote search failed, falling back to local scan", "query", q, "error", err)
		return LocalFallback(q, local)
	}
	return o.Reconcile(hits, local)
}

// Reconcile maps hits onto local records, synthesizing a record for each
// hit with no local counterpart. The result holds each (id, order number)
// pair once, in hit order.
func (o *Orchestrator) Reconcile(hits []types.SearchHit, local []types.Record) []types.Record {
	idx := newRecordIndex(local)
	out := make([]types.Record, 0, len(hits))
	seen := make(map[string]int, len(hits))

	for _, hit := range hits {
		var rec types.Record
		if i, ok := idx.match(hit); ok {
			rec = merge(local[i], hit)
		} else {
			rec = o.synthesize(hit)
		}

		key := dedupKey(rec)
		if at, dup := seen[key]; dup {
			out[at].Highlights = mergeHighlights(out[at].Highlights, rec.Highlights)
			continue
		}
		seen[key] = len(out)
		out = append(out, rec)
	}
	return out
}

func (o *Orchestrator) remoteSearch(ctx context.Context, req remote.SearchRequest) ([]types.SearchHit, error) {
	if o.searcher == nil {
		return nil, errNoSearcher
	}
	req.DatasetID = o.opts.DatasetID
	req.HitsPerPage = o.opts.HitsPerPage
	req.Page = 0
	return o.searcher.Search(ctx, req)
}

// synthesize builds a best-effort record from a hit. Status strings outside
// the closed vocabularies fall back to the default statuses.
func (o *Orchestrator) synthesize(hit types.SearchHit) types.Record {
	id := hit.ObjectID
	if id == "" && hit.OrderNumber != "" {
		id = "order-" + hit.OrderNumber
	}
	if id == "" {
		id = o.opts.NewID()
	}

	created, ok := remote.ParseTime(hit.CreatedAt)
	if !ok {
		created = o.opts.Clock()
	}

	return types.Record{
		ID:                id,
		OrderNumber:       hit.OrderNumber,
		CustomerName:      hit.CustomerName,
		Email:             hit.Email,
		Total:             hit.Total,
		Currency:          hit.Currency,
		CreatedAt:         created,
		UpdatedAt:         created,
		Tags:              append([]string(nil), hit.Tags...),
		FinancialStatus:   types.ParseFinancialStatus(hit.FinancialStatus),
		FulfillmentStatus: types.ParseFulfillmentStatus(hit.FulfillmentStatus),
		Vendor:            hit.Vendor,
		Highlights:        mergeHighlights(nil, hit.Highlights),
		Synthesized:       true,
	}
}

// NormalizeQuery trims and lower-cases a free-text query.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// merge returns a copy of the local record carrying the hit's highlights.
// Every other field comes from the local record.
func merge(rec types.Record, hit types.SearchHit) types.Record {
	out := rec.Clone()
	out.Highlights = mergeHighlights(out.Highlights, hit.Highlights)
	return out
}

func mergeHighlights(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

func dedupKey(r types.Record) string {
	return r.ID + "\x00" + strings.ToLower(r.OrderNumber)
}
