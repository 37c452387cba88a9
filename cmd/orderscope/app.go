package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/orderscope/internal/config"
	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/notify"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/internal/storage"
	"github.com/scrypster/orderscope/internal/storage/memory"
	"github.com/scrypster/orderscope/internal/storage/postgres"
	"github.com/scrypster/orderscope/internal/storage/sqlite"
	"github.com/scrypster/orderscope/internal/view"
)

// app holds the long-lived components shared by every command.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   storage.KVStore
	source  remote.ChunkSource
	service *dataset.Service
	search  *search.Orchestrator
	views   *view.Resolver
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if rps := cfg.Remote.RequestsPerSec; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}

	source, err := openChunkSource(cfg, limiter, log)
	if err != nil {
		closeStore(store, log)
		return nil, err
	}

	chunks, err := dataset.NewChunkCache(source, dataset.ChunkCacheConfig{
		DatasetID:      cfg.Remote.DatasetID,
		TTL:            cfg.Cache.ChunkTTL.D(),
		MaxEntries:     cfg.Cache.MaxChunks,
		RetryAttempts:  cfg.Cache.RetryAttempts,
		RetryBaseDelay: cfg.Cache.RetryBaseDelay.D(),
		Store:          store,
		Logger:         log,
	})
	if err != nil {
		closeStore(store, log)
		return nil, err
	}
	counts := dataset.NewCountCache(source, dataset.CountCacheConfig{
		DatasetID: cfg.Remote.DatasetID,
		TTL:       cfg.Cache.CountTTL.D(),
		Default:   cfg.Cache.DefaultChunkCount,
		Store:     store,
		Logger:    log,
	})
	serviceCfg := dataset.ServiceConfig{
		ChunkSize: cfg.Cache.ChunkSize,
		Prefetch:  cfg.Cache.Prefetch,
		Logger:    log,
	}
	if store != nil {
		serviceCfg.Placeholder = dataset.LastKnownPlaceholder(chunks, cfg.Remote.ChunkTimeout.D())
	}
	service := dataset.NewService(chunks, counts, serviceCfg)

	searcher := remote.NewSearchClient(remote.SearchConfig{
		BaseURL: cfg.Remote.SearchURL,
		APIKey:  cfg.Remote.SearchAPIKey,
		Timeout: cfg.Remote.SearchTimeout.D(),
		Limiter: limiter,
		Logger:  log,
	})
	orchestrator := search.NewOrchestrator(searcher, search.Options{
		DatasetID:   cfg.Remote.DatasetID,
		HitsPerPage: cfg.Search.HitsPerPage,
		Logger:      log,
	})

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		source:  source,
		service: service,
		search:  orchestrator,
		views:   view.NewResolver(orchestrator, log),
	}, nil
}

// Close waits for background prefetches and closes the store.
func (a *app) Close() {
	a.service.Wait()
	closeStore(a.store, a.log)
}

// openStore returns nil when persistence is disabled.
func openStore(sc config.StorageConfig) (storage.KVStore, error) {
	switch sc.StorageEngine {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.NewKVStore(), nil
	case "sqlite":
		if err := os.MkdirAll(sc.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewKVStore(filepath.Join(sc.DataPath, "orderscope.db"))
	case "postgres":
		return postgres.NewKVStore(sc.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", sc.StorageEngine)
	}
}

func closeStore(store storage.KVStore, log *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Warn("failed to close store", "error", err)
	}
}

func openChunkSource(cfg *config.Config, limiter *rate.Limiter, log *slog.Logger) (remote.ChunkSource, error) {
	switch cfg.Remote.ChunkSource {
	case "minio":
		return openObjectSource(cfg, limiter, log)
	case "dir":
		return openDirSource(cfg, log)
	default:
		return remote.NewHTTPSource(remote.HTTPConfig{
			BaseURL:   cfg.Remote.BaseURL,
			DatasetID: cfg.Remote.DatasetID,
			Timeout:   cfg.Remote.ChunkTimeout.D(),
			Limiter:   limiter,
			Logger:    log,
		}), nil
	}
}

func openObjectSource(cfg *config.Config, limiter *rate.Limiter, log *slog.Logger) (*remote.ObjectSource, error) {
	o := cfg.Objects
	return remote.NewObjectSource(remote.ObjectConfig{
		Endpoint:  o.Endpoint,
		AccessKey: o.AccessKey,
		SecretKey: o.SecretKey,
		UseSSL:    o.UseSSL,
		Bucket:    o.Bucket,
		Prefix:    o.Prefix,
		Timeout:   cfg.Remote.ChunkTimeout.D(),
		Limiter:   limiter,
		Logger:    log,
	})
}

func openDirSource(cfg *config.Config, log *slog.Logger) (*remote.DirSource, error) {
	return remote.NewDirSource(remote.DirConfig{Dir: cfg.Remote.ChunkDir, Logger: log})
}

// watchChunks starts a watcher on the chunk directory when the dir source
// is in use. It returns nil otherwise.
func (a *app) watchChunks() (*notify.ChunkWatcher, error) {
	src, ok := a.source.(*remote.DirSource)
	if !ok {
		return nil, nil
	}
	w := notify.NewChunkWatcher(src.Dir(), a.onChunkChange, a.log)
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("failed to watch chunk directory: %w", err)
	}
	return w, nil
}

// onChunkChange drops the cached copy of a chunk rewritten on disk. New and
// removed files also change the chunk count.
func (a *app) onChunkChange(evt notify.ChunkEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.service.Chunks().Invalidate(ctx, evt.Index)
	if evt.Kind != notify.ChunkModified {
		a.service.Counts().Refresh(ctx)
	}
	a.log.Info("chunk changed on disk", "chunk", evt.Index, "change", evt.Kind.String())
}

// commandContext bounds a one-shot command.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}
