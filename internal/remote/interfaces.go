// Package remote talks to the remote data service: the chunk endpoints
// that serve the pre-partitioned dataset, and the search index scoped to
// the same dataset.
package remote

import (
	"context"
	"fmt"

	"github.com/scrypster/orderscope/pkg/types"
)

// ChunkSource serves fixed-size chunks of the remote dataset.
type ChunkSource interface {
	// FetchChunk returns the normalized records of chunk index. A payload
	// without a valid record array is an empty chunk, not an error.
	FetchChunk(ctx context.Context, index int) ([]types.Record, error)

	// ChunkKeys lists the keys of all available chunks.
	ChunkKeys(ctx context.Context) ([]string, error)
}

// Searcher queries the remote search index.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]types.SearchHit, error)
}

// SearchRequest is the body of a remote search call.
type SearchRequest struct {
	DatasetID   string `json:"datasetId"`
	Query       string `json:"query"`
	HitsPerPage int    `json:"hitsPerPage"`
	Page        int    `json:"page"`
	Filters     string `json:"filters,omitempty"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}
