// Package view decides which result set the console shows and narrows it
// with per-column filters.
package view

// SourceTag names the result set that is authoritative for the current view.
type SourceTag string

const (
	SourceStructuredFilter SourceTag = "structured_filter"
	SourceRemoteSearch     SourceTag = "remote_search"
	SourceLocalQuery       SourceTag = "local_query"
	SourceFullDataset      SourceTag = "full_dataset"
)

// SelectSource picks the authoritative result set. A structured filter wins
// over a free-text search, which wins over a local query. With none of them
// active the full page is shown.
func SelectSource(structuredFilterActive, searchActive, queryActive bool) SourceTag {
	switch {
	case structuredFilterActive:
		return SourceStructuredFilter
	case searchActive:
		return SourceRemoteSearch
	case queryActive:
		return SourceLocalQuery
	default:
		return SourceFullDataset
	}
}
