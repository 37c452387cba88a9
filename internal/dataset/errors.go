package dataset

import (
	"errors"
	"fmt"
)

// ErrNoPlaceholder is returned when live data could not be loaded and no
// placeholder records are available to stand in for it.
var ErrNoPlaceholder = errors.New("no placeholder data available")

// ChunkFetchError reports a chunk that could not be fetched after every
// retry attempt was used.
type ChunkFetchError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkFetchError) Error() string {
	return fmt.Sprintf("failed to fetch chunk %d after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *ChunkFetchError) Unwrap() error {
	return e.Err
}
