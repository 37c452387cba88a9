package dataset_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/storage"
	"github.com/scrypster/orderscope/internal/storage/memory"
	"github.com/scrypster/orderscope/pkg/types"
)

func newTestCache(t *testing.T, src *fakeSource, clock *fakeClock, sleeper *sleepRecorder, store storage.KVStore) *dataset.ChunkCache {
	t.Helper()
	cache, err := dataset.NewChunkCache(src, dataset.ChunkCacheConfig{
		DatasetID:      "orders",
		TTL:            5 * time.Minute,
		RetryBaseDelay: time.Second,
		Store:          store,
		Logger:         logger.Discard(),
		Clock:          clock.Now,
		Sleep:          sleeper.Sleep,
	})
	require.NoError(t, err)
	return cache
}

func TestChunkCache_ConcurrentGetsFanIn(t *testing.T) {
	src := newFakeSource(1000, 500)
	src.gate = make(chan struct{})
	src.entered = make(chan struct{}, 1)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, nil)

	const n = 20
	results := make([]*types.Chunk, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), 0)
		}(i)
	}

	<-src.entered
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.fetches.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Len(t, results[0].Records, 500)
}

func TestChunkCache_TTL(t *testing.T) {
	src := newFakeSource(1000, 500)
	clock := newFakeClock()
	cache := newTestCache(t, src, clock, &sleepRecorder{}, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.fetches.Load())

	clock.Advance(5*time.Minute - time.Nanosecond)
	again, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), src.fetches.Load())

	clock.Advance(time.Nanosecond)
	stale, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, first, stale, "expired chunk is served while it refreshes")

	cache.Wait()
	assert.Equal(t, int32(2), src.fetches.Load())
	refreshed, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotSame(t, first, refreshed)
	assert.Equal(t, clock.Now(), refreshed.FetchedAt)
	assert.Equal(t, int32(2), src.fetches.Load())
}

func TestChunkCache_RetryBound(t *testing.T) {
	src := newFakeSource(1000, 500)
	src.setFailing(true)
	sleeper := &sleepRecorder{}
	cache := newTestCache(t, src, newFakeClock(), sleeper, nil)

	_, err := cache.Get(context.Background(), 0)
	require.Error(t, err)

	var fetchErr *dataset.ChunkFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 0, fetchErr.Index)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.ErrorIs(t, err, errUpstream)

	assert.Equal(t, int32(3), src.fetches.Load())
	delays := sleeper.Delays()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

func TestChunkCache_StaleFallback(t *testing.T) {
	src := newFakeSource(1000, 500)
	clock := newFakeClock()
	cache := newTestCache(t, src, clock, &sleepRecorder{}, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx, 0)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	src.setFailing(true)

	got, err := cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, first, got)

	cache.Wait()
	assert.Equal(t, int32(4), src.fetches.Load())
	kept, ok := cache.Peek(0)
	require.True(t, ok)
	assert.Same(t, first, kept, "failed refresh keeps the stale chunk")
}

func TestChunkCache_WaiterCancellationDoesNotCancelFetch(t *testing.T) {
	src := newFakeSource(1000, 500)
	src.gate = make(chan struct{})
	src.entered = make(chan struct{}, 1)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, 0)
		cancelled <- err
	}()
	<-src.entered

	survivor := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), 0)
		survivor <- err
	}()

	cancel()
	assert.ErrorIs(t, <-cancelled, context.Canceled)

	close(src.gate)
	require.NoError(t, <-survivor)
	assert.Equal(t, int32(1), src.fetches.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestChunkCache_PersistedEntryAvoidsFetch(t *testing.T) {
	store := memory.NewKVStore()
	clock := newFakeClock()
	ctx := context.Background()

	warm := newFakeSource(1000, 500)
	_, err := newTestCache(t, warm, clock, &sleepRecorder{}, store).Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), warm.fetches.Load())

	cold := newFakeSource(1000, 500)
	chunk, err := newTestCache(t, cold, clock, &sleepRecorder{}, store).Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, cold.fetches.Load())
	require.Len(t, chunk.Records, 500)
	assert.Equal(t, "id-500", chunk.Records[0].ID)
}

func TestChunkCache_CorruptPersistedEntryIsIgnored(t *testing.T) {
	store := memory.NewKVStore()
	require.NoError(t, store.Put(context.Background(), "chunk:orders:0", []byte("{not json")))

	src := newFakeSource(1000, 500)
	chunk, err := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, store).Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, chunk.Records, 500)
	assert.Equal(t, int32(1), src.fetches.Load())
}

func TestChunkCache_InvalidateAndReset(t *testing.T) {
	src := newFakeSource(1500, 500)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cache.Get(ctx, i)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, cache.Len())

	cache.Invalidate(ctx, 1)
	assert.Equal(t, 2, cache.Len())
	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4), src.fetches.Load())

	cache.Reset()
	assert.Zero(t, cache.Len())
}

func TestChunkCache_InvalidateDuringFetchDiscardsResult(t *testing.T) {
	store := memory.NewKVStore()
	src := newFakeSource(1000, 500)
	src.gate = make(chan struct{})
	src.entered = make(chan struct{}, 1)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, store)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, 0)
		done <- err
	}()
	<-src.entered

	cache.Invalidate(ctx, 0)
	close(src.gate)
	require.NoError(t, <-done, "waiters of the old fetch still get its result")

	assert.Zero(t, cache.Len())
	_, err := store.Get(ctx, "chunk:orders:0")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.fetches.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestChunkCache_ResetDuringFetchDiscardsResult(t *testing.T) {
	src := newFakeSource(1000, 500)
	src.gate = make(chan struct{})
	src.entered = make(chan struct{}, 1)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), 1)
		done <- err
	}()
	<-src.entered

	cache.Reset()
	close(src.gate)
	require.NoError(t, <-done)
	assert.Zero(t, cache.Len())
}

func TestChunkCache_NegativeIndex(t *testing.T) {
	src := newFakeSource(1000, 500)
	cache := newTestCache(t, src, newFakeClock(), &sleepRecorder{}, nil)

	_, err := cache.Get(context.Background(), -1)
	assert.Error(t, err)
	assert.Zero(t, src.fetches.Load())
}
