// Package dataset serves the remote order dataset page by page. Chunks and
// the chunk count are cached in memory with a TTL, persisted opportunistically
// to a key-value store, and fetched at most once per key at a time.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/internal/storage"
	"github.com/scrypster/orderscope/pkg/types"
)

// ChunkCacheConfig configures a ChunkCache. Zero fields take defaults.
type ChunkCacheConfig struct {
	DatasetID      string
	TTL            time.Duration // default: 5m
	MaxEntries     int           // default: 256
	RetryAttempts  int           // default: 3
	RetryBaseDelay time.Duration // default: 1s

	// Store persists fetched chunks across restarts. Optional.
	Store storage.KVStore

	Logger *slog.Logger

	// Clock and Sleep are replaced in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *ChunkCacheConfig) setDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 256
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
}

// ChunkCache holds recently fetched chunks keyed by index.
//
// Concurrent Get calls for the same index share one fetch. A waiter whose
// context ends stops waiting but does not cancel the shared fetch, so the
// other waiters still receive its result. An expired chunk is served as is
// while a refresh runs in the background.
//
// Invalidate and Reset advance a generation. A fetch that started under an
// older generation still answers its waiters but is never cached.
type ChunkCache struct {
	src     remote.ChunkSource
	cfg     ChunkCacheConfig
	entries *lru.Cache[int, *types.Chunk]
	group   singleflight.Group
	log     *slog.Logger

	mu    sync.Mutex
	epoch uint64
	gens  map[int]uint64

	refreshes tasks
}

// generation identifies the cache state a fetch started under.
type generation struct {
	epoch uint64
	index uint64
}

// NewChunkCache creates a chunk cache in front of src.
func NewChunkCache(src remote.ChunkSource, cfg ChunkCacheConfig) (*ChunkCache, error) {
	if src == nil {
		return nil, fmt.Errorf("chunk cache: source is required")
	}
	cfg.setDefaults()
	entries, err := lru.New[int, *types.Chunk](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk LRU: %w", err)
	}
	return &ChunkCache{
		src:     src,
		cfg:     cfg,
		entries: entries,
		log:     logger.OrDefault(cfg.Logger),
		gens:    make(map[int]uint64),
	}, nil
}

// Get returns chunk index. A cached copy is returned immediately; when it
// is older than the TTL a background refresh is started. A missing chunk is
// fetched and a failure is reported as a *ChunkFetchError.
func (c *ChunkCache) Get(ctx context.Context, index int) (*types.Chunk, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid chunk index %d", index)
	}
	if chunk, ok := c.entries.Get(index); ok {
		if !c.fresh(chunk) {
			c.refresh(ctx, index)
		}
		return chunk, nil
	}

	ch := c.flight(ctx, index)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Chunk), nil
	}
}

func (c *ChunkCache) flight(ctx context.Context, index int) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(strconv.Itoa(index), func() (interface{}, error) {
		return c.load(detached, index)
	})
}

// refresh reloads chunk index in the background, sharing any fetch already
// in flight.
func (c *ChunkCache) refresh(ctx context.Context, index int) {
	ch := c.flight(ctx, index)
	c.refreshes.Go(func() {
		if res := <-ch; res.Err != nil {
			c.log.Warn("background chunk refresh failed", "chunk", index, "error", res.Err)
		}
	})
}

// Wait blocks until background refreshes have finished.
func (c *ChunkCache) Wait() {
	c.refreshes.Wait()
}

// Peek returns the cached chunk without fetching or touching recency.
func (c *ChunkCache) Peek(index int) (*types.Chunk, bool) {
	return c.entries.Peek(index)
}

// Invalidate drops chunk index from memory and the persistent store.
func (c *ChunkCache) Invalidate(ctx context.Context, index int) {
	c.mu.Lock()
	c.gens[index]++
	c.entries.Remove(index)
	c.mu.Unlock()

	c.group.Forget(strconv.Itoa(index))
	if c.cfg.Store != nil {
		if err := c.cfg.Store.Delete(ctx, c.storeKey(index)); err != nil {
			c.log.Debug("failed to delete persisted chunk", "chunk", index, "error", err)
		}
	}
}

// Reset empties the in-memory cache. Persisted entries are left alone.
func (c *ChunkCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries.Purge()
}

// LastKnown returns the records of chunk index from memory or the store,
// ignoring the TTL. It never fetches.
func (c *ChunkCache) LastKnown(ctx context.Context, index int) ([]types.Record, time.Time, bool) {
	if chunk, ok := c.entries.Peek(index); ok {
		return chunk.Records, chunk.FetchedAt, true
	}
	if c.cfg.Store == nil {
		return nil, time.Time{}, false
	}
	var records []types.Record
	fetchedAt, err := storage.LoadLastJSON(ctx, c.cfg.Store, c.storeKey(index), &records)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Debug("no usable persisted chunk", "chunk", index, "error", err)
		}
		return nil, time.Time{}, false
	}
	return records, fetchedAt, true
}

// Len returns the number of chunks held in memory.
func (c *ChunkCache) Len() int {
	return c.entries.Len()
}

func (c *ChunkCache) fresh(chunk *types.Chunk) bool {
	return c.cfg.Clock().Sub(chunk.FetchedAt) < c.cfg.TTL
}

func (c *ChunkCache) currentGen(index int) generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{epoch: c.epoch, index: c.gens[index]}
}

// store caches chunk unless the cache was invalidated after gen was taken.
func (c *ChunkCache) store(ctx context.Context, gen generation, chunk *types.Chunk, persist bool) {
	c.mu.Lock()
	latest := generation{epoch: c.epoch, index: c.gens[chunk.Index]}
	current := gen == latest
	if current {
		c.entries.Add(chunk.Index, chunk)
	}
	c.mu.Unlock()

	if !current {
		c.log.Debug("discarding chunk fetched before invalidation", "chunk", chunk.Index)
		return
	}
	if !persist {
		return
	}
	c.persist(ctx, chunk)
	// An Invalidate that ran during the write may have deleted the key first.
	if c.currentGen(chunk.Index).index != gen.index && c.cfg.Store != nil {
		if err := c.cfg.Store.Delete(ctx, c.storeKey(chunk.Index)); err != nil {
			c.log.Debug("failed to delete persisted chunk", "chunk", chunk.Index, "error", err)
		}
	}
}

func (c *ChunkCache) load(ctx context.Context, index int) (*types.Chunk, error) {
	gen := c.currentGen(index)
	stale, hasStale := c.entries.Peek(index)
	if hasStale && c.fresh(stale) {
		// Another flight finished between the caller's check and ours.
		return stale, nil
	}

	if !hasStale {
		if chunk, ok := c.loadPersisted(ctx, index); ok {
			c.store(ctx, gen, chunk, false)
			return chunk, nil
		}
	}

	records, attempts, err := c.fetchWithRetry(ctx, index)
	if err != nil {
		if hasStale {
			c.log.Warn("serving stale chunk after refresh failed",
				"chunk", index, "attempts", attempts, "age", c.cfg.Clock().Sub(stale.FetchedAt), "error", err)
			return stale, nil
		}
		return nil, &ChunkFetchError{Index: index, Attempts: attempts, Err: err}
	}

	chunk := &types.Chunk{Index: index, Records: records, FetchedAt: c.cfg.Clock()}
	c.store(ctx, gen, chunk, true)
	return chunk, nil
}

// fetchWithRetry calls the source up to RetryAttempts times, sleeping
// attempt × RetryBaseDelay between attempts.
func (c *ChunkCache) fetchWithRetry(ctx context.Context, index int) ([]types.Record, int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		records, err := c.src.FetchChunk(ctx, index)
		if err == nil {
			return records, attempt, nil
		}
		lastErr = err
		c.log.Debug("chunk fetch failed", "chunk", index, "attempt", attempt, "error", err)

		if attempt == c.cfg.RetryAttempts {
			return nil, attempt, lastErr
		}
		if err := c.cfg.Sleep(ctx, time.Duration(attempt)*c.cfg.RetryBaseDelay); err != nil {
			return nil, attempt, errors.Join(lastErr, err)
		}
	}
	return nil, c.cfg.RetryAttempts, lastErr
}

func (c *ChunkCache) loadPersisted(ctx context.Context, index int) (*types.Chunk, bool) {
	if c.cfg.Store == nil {
		return nil, false
	}
	var records []types.Record
	fetchedAt, err := storage.LoadJSON(ctx, c.cfg.Store, c.storeKey(index), &records, c.cfg.Clock())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrExpired) {
			c.log.Warn("ignoring unreadable persisted chunk", "chunk", index, "error", err)
		}
		return nil, false
	}
	if records == nil {
		records = []types.Record{}
	}
	return &types.Chunk{Index: index, Records: records, FetchedAt: fetchedAt}, true
}

func (c *ChunkCache) persist(ctx context.Context, chunk *types.Chunk) {
	if c.cfg.Store == nil {
		return
	}
	if err := storage.SaveJSON(ctx, c.cfg.Store, c.storeKey(chunk.Index), chunk.Records, chunk.FetchedAt, c.cfg.TTL); err != nil {
		c.log.Warn("failed to persist chunk", "chunk", chunk.Index, "error", err)
	}
}

func (c *ChunkCache) storeKey(index int) string {
	return fmt.Sprintf("chunk:%s:%d", c.cfg.DatasetID, index)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
