package dataset_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/pkg/types"
)

var errUpstream = errors.New("upstream unavailable")

// fakeSource serves a synthetic dataset of total records split into chunks
// of chunkSize.
type fakeSource struct {
	total     int
	chunkSize int

	fetches atomic.Int32
	keys    atomic.Int32

	mu      sync.Mutex
	failing bool
	keysErr error
	gate    chan struct{} // when set, FetchChunk blocks until closed
	entered chan struct{}
}

func newFakeSource(total, chunkSize int) *fakeSource {
	return &fakeSource{total: total, chunkSize: chunkSize}
}

func (f *fakeSource) chunkCount() int {
	return (f.total + f.chunkSize - 1) / f.chunkSize
}

func (f *fakeSource) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeSource) FetchChunk(ctx context.Context, index int) ([]types.Record, error) {
	f.fetches.Add(1)

	f.mu.Lock()
	gate, entered, failing := f.gate, f.entered, f.failing
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if failing {
		return nil, errUpstream
	}
	if index >= f.chunkCount() {
		return nil, &remote.StatusError{StatusCode: 404, Body: "no such chunk"}
	}

	start := index * f.chunkSize
	end := start + f.chunkSize
	if end > f.total {
		end = f.total
	}
	records := make([]types.Record, 0, end-start)
	for i := start; i < end; i++ {
		records = append(records, types.Record{
			ID:          fmt.Sprintf("id-%d", i),
			OrderNumber: fmt.Sprintf("#%d", 1000+i),
			CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return records, nil
}

func (f *fakeSource) ChunkKeys(ctx context.Context) ([]string, error) {
	f.keys.Add(1)
	f.mu.Lock()
	err := f.keysErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	keys := make([]string, f.chunkCount())
	for i := range keys {
		keys[i] = fmt.Sprintf("chunk_%d", i)
	}
	return keys, nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sleepRecorder records requested delays without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var _ remote.ChunkSource = (*fakeSource)(nil)
