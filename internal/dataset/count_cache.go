package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/internal/storage"
)

// DefaultChunkCount stands in for the chunk count when the keys endpoint
// cannot be read.
const DefaultChunkCount = 140

// CountCacheConfig configures a CountCache. Zero fields take defaults.
type CountCacheConfig struct {
	DatasetID string
	TTL       time.Duration // default: 1h
	Default   int           // default: DefaultChunkCount
	Store     storage.KVStore
	Logger    *slog.Logger
	Clock     func() time.Time
}

// CountCache caches the number of chunks in the dataset.
//
// A failed or empty lookup caches Default as though the remote had reported
// it, so a failing endpoint is asked again only after the TTL.
type CountCache struct {
	src   remote.ChunkSource
	cfg   CountCacheConfig
	group singleflight.Group
	log   *slog.Logger

	mu        sync.Mutex
	value     int
	fetchedAt time.Time
	loaded    bool
}

// NewCountCache creates a count cache in front of src.
func NewCountCache(src remote.ChunkSource, cfg CountCacheConfig) *CountCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Default <= 0 {
		cfg.Default = DefaultChunkCount
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CountCache{src: src, cfg: cfg, log: logger.OrDefault(cfg.Logger)}
}

// Count returns the number of chunks. It never fails.
func (c *CountCache) Count(ctx context.Context) int {
	if v, ok := c.cached(); ok {
		return v
	}
	return c.await(ctx, false)
}

// Refresh fetches the count again regardless of the cached value's age.
func (c *CountCache) Refresh(ctx context.Context) int {
	return c.await(ctx, true)
}

// Reset forgets the cached value.
func (c *CountCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = 0
	c.fetchedAt = time.Time{}
	c.loaded = false
}

func (c *CountCache) cached() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && c.cfg.Clock().Sub(c.fetchedAt) < c.cfg.TTL {
		return c.value, true
	}
	return 0, false
}

func (c *CountCache) await(ctx context.Context, force bool) int {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan("count", func() (interface{}, error) {
		return c.load(detached, force), nil
	})
	select {
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.loaded {
			return c.value
		}
		return c.cfg.Default
	case res := <-ch:
		return res.Val.(int)
	}
}

func (c *CountCache) load(ctx context.Context, force bool) int {
	if !force {
		if v, ok := c.cached(); ok {
			return v
		}
		if v, fetchedAt, ok := c.loadPersisted(ctx); ok {
			c.set(v, fetchedAt)
			return v
		}
	}

	n, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("chunk count unavailable, using default", "default", c.cfg.Default, "error", err)
		n = c.cfg.Default
	}

	now := c.cfg.Clock()
	c.set(n, now)
	if c.cfg.Store != nil {
		if err := storage.SaveJSON(ctx, c.cfg.Store, c.storeKey(), n, now, c.cfg.TTL); err != nil {
			c.log.Warn("failed to persist chunk count", "error", err)
		}
	}
	return n
}

func (c *CountCache) fetch(ctx context.Context) (int, error) {
	if c.src == nil {
		return 0, fmt.Errorf("no chunk source")
	}
	keys, err := c.src.ChunkKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("keys endpoint returned no chunks")
	}
	return len(keys), nil
}

func (c *CountCache) loadPersisted(ctx context.Context) (int, time.Time, bool) {
	if c.cfg.Store == nil {
		return 0, time.Time{}, false
	}
	var n int
	fetchedAt, err := storage.LoadJSON(ctx, c.cfg.Store, c.storeKey(), &n, c.cfg.Clock())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrExpired) {
			c.log.Warn("ignoring unreadable persisted chunk count", "error", err)
		}
		return 0, time.Time{}, false
	}
	if n <= 0 {
		return 0, time.Time{}, false
	}
	return n, fetchedAt, true
}

func (c *CountCache) set(v int, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.fetchedAt = fetchedAt
	c.loaded = true
}

func (c *CountCache) storeKey() string {
	return "count:" + c.cfg.DatasetID
}
