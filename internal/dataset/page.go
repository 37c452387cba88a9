package dataset

// Resolution is the outcome of mapping a page number onto a chunk.
type Resolution struct {
	ChunkIndex int
	// Page is the page actually served. It differs from the requested page
	// only when Corrected is set.
	Page      int
	Corrected bool
}

// ResolvePage maps a 1-based page number onto a chunk index. Page size
// always equals the chunk size, so page N is chunk N-1. Pages outside
// [1, totalChunks] are clamped and reported as Corrected; callers treat the
// correction as a redirect, not a failure.
func ResolvePage(page, pageSize, totalChunks int) Resolution {
	if totalChunks < 1 {
		totalChunks = 1
	}
	res := Resolution{Page: page}
	switch {
	case page < 1:
		res.Page, res.Corrected = 1, true
	case page > totalChunks:
		res.Page, res.Corrected = totalChunks, true
	}
	res.ChunkIndex = res.Page - 1
	return res
}

// HasMore reports whether a chunk follows chunkIndex.
func HasMore(chunkIndex, totalChunks int) bool {
	return chunkIndex < totalChunks-1
}
