package dataset_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/storage"
	"github.com/scrypster/orderscope/internal/storage/memory"
)

func newTestCounts(src *fakeSource, clock *fakeClock, store storage.KVStore) *dataset.CountCache {
	return dataset.NewCountCache(src, dataset.CountCacheConfig{
		DatasetID: "orders",
		TTL:       time.Hour,
		Store:     store,
		Logger:    logger.Discard(),
		Clock:     clock.Now,
	})
}

func TestCountCache_CountsKeys(t *testing.T) {
	src := newFakeSource(70111, 500)
	counts := newTestCounts(src, newFakeClock(), nil)

	assert.Equal(t, 141, counts.Count(context.Background()))
	assert.Equal(t, 141, counts.Count(context.Background()))
	assert.Equal(t, int32(1), src.keys.Load())
}

func TestCountCache_DefaultIsCachedAsGenuine(t *testing.T) {
	src := newFakeSource(70111, 500)
	src.keysErr = errUpstream
	clock := newFakeClock()
	counts := newTestCounts(src, clock, nil)
	ctx := context.Background()

	assert.Equal(t, dataset.DefaultChunkCount, counts.Count(ctx))
	assert.Equal(t, dataset.DefaultChunkCount, counts.Count(ctx))
	assert.Equal(t, int32(1), src.keys.Load())

	clock.Advance(time.Hour)
	src.mu.Lock()
	src.keysErr = nil
	src.mu.Unlock()
	assert.Equal(t, 141, counts.Count(ctx))
	assert.Equal(t, int32(2), src.keys.Load())
}

func TestCountCache_EmptyKeysUsesDefault(t *testing.T) {
	src := newFakeSource(0, 500)
	counts := newTestCounts(src, newFakeClock(), nil)

	assert.Equal(t, dataset.DefaultChunkCount, counts.Count(context.Background()))
}

func TestCountCache_Persisted(t *testing.T) {
	store := memory.NewKVStore()
	clock := newFakeClock()
	ctx := context.Background()

	require.Equal(t, 3, newTestCounts(newFakeSource(1500, 500), clock, store).Count(ctx))

	cold := newFakeSource(1500, 500)
	assert.Equal(t, 3, newTestCounts(cold, clock, store).Count(ctx))
	assert.Zero(t, cold.keys.Load())
}

func TestCountCache_RefreshAndReset(t *testing.T) {
	src := newFakeSource(1500, 500)
	counts := newTestCounts(src, newFakeClock(), nil)
	ctx := context.Background()

	counts.Count(ctx)
	counts.Refresh(ctx)
	assert.Equal(t, int32(2), src.keys.Load())

	counts.Reset()
	counts.Count(ctx)
	assert.Equal(t, int32(3), src.keys.Load())
}
