package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/pkg/types"
)

// PlaceholderFunc builds stand-in records for a page whose chunk could not
// be loaded.
type PlaceholderFunc func(page, pageSize int) []types.Record

// LastKnownPlaceholder serves the last copy of a page's chunk that chunks
// ever held, however old. Pages that were never loaded get no records.
func LastKnownPlaceholder(chunks *ChunkCache, timeout time.Duration) PlaceholderFunc {
	return func(page, _ int) []types.Record {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		records, fetchedAt, ok := chunks.LastKnown(ctx, page-1)
		if !ok {
			return nil
		}
		chunks.log.Info("serving last known chunk", "chunk", page-1, "fetchedAt", fetchedAt)
		return records
	}
}

// placeholderNotice is shown alongside placeholder records.
const placeholderNotice = "Live data could not be loaded. Showing placeholder records."

// Page is one page of the dataset.
type Page struct {
	Records      []types.Record `json:"records"`
	TotalChunks  int            `json:"totalChunks"`
	CurrentChunk int            `json:"currentChunk"`
	HasMore      bool           `json:"hasMore"`

	Page          int    `json:"page"`
	RequestedPage int    `json:"requestedPage"`
	Corrected     bool   `json:"corrected,omitempty"`
	Placeholder   bool   `json:"placeholder,omitempty"`
	Notice        string `json:"notice,omitempty"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	ChunkSize   int  // records per chunk, default: 500
	Prefetch    bool // warm the next chunk after each page
	Placeholder PlaceholderFunc
	Logger      *slog.Logger
}

// Service is the page-oriented entry point to the dataset. It is built once
// at startup and shared.
type Service struct {
	chunks *ChunkCache
	counts *CountCache
	cfg    ServiceConfig
	log    *slog.Logger

	prefetches tasks
}

// NewService creates a Service over the given caches.
func NewService(chunks *ChunkCache, counts *CountCache, cfg ServiceConfig) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	return &Service{
		chunks: chunks,
		counts: counts,
		cfg:    cfg,
		log:    logger.OrDefault(cfg.Logger),
	}
}

// GetPage returns page (1-based). An out-of-range page is served as the
// nearest valid page with Corrected set. When the chunk cannot be fetched
// and a placeholder is configured, placeholder records are returned with
// Placeholder set and a notice; otherwise the *ChunkFetchError is returned.
func (s *Service) GetPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = s.cfg.ChunkSize
	}
	if pageSize != s.cfg.ChunkSize {
		s.log.Debug("page size differs from chunk size, serving whole chunk", "pageSize", pageSize, "chunkSize", s.cfg.ChunkSize)
	}

	total := s.counts.Count(ctx)
	res := ResolvePage(page, pageSize, total)
	if res.Corrected {
		s.log.Debug("page corrected", "requested", page, "served", res.Page, "totalChunks", total)
	}

	out := &Page{
		TotalChunks:   total,
		CurrentChunk:  res.ChunkIndex,
		HasMore:       HasMore(res.ChunkIndex, total),
		Page:          res.Page,
		RequestedPage: page,
		Corrected:     res.Corrected,
	}

	chunk, err := s.chunks.Get(ctx, res.ChunkIndex)
	if err != nil {
		var fetchErr *ChunkFetchError
		if !errors.As(err, &fetchErr) || s.cfg.Placeholder == nil {
			return nil, err
		}
		records := s.cfg.Placeholder(res.Page, pageSize)
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoPlaceholder, err)
		}
		s.log.Warn("serving placeholder page", "page", res.Page, "chunk", res.ChunkIndex, "error", err)
		out.Records = records
		out.Placeholder = true
		out.Notice = placeholderNotice
		return out, nil
	}

	out.Records = chunk.Records
	if out.HasMore && s.cfg.Prefetch {
		s.prefetch(res.ChunkIndex + 1)
	}
	return out, nil
}

// Records returns the records of page.
func (s *Service) Records(ctx context.Context, page int) ([]types.Record, error) {
	p, err := s.GetPage(ctx, page, s.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	return p.Records, nil
}

// TotalChunks returns the cached chunk count.
func (s *Service) TotalChunks(ctx context.Context) int {
	return s.counts.Count(ctx)
}

// Chunks exposes the chunk cache.
func (s *Service) Chunks() *ChunkCache { return s.chunks }

// Counts exposes the count cache.
func (s *Service) Counts() *CountCache { return s.counts }

// Wait blocks until outstanding prefetches and background refreshes have
// finished.
func (s *Service) Wait() {
	s.prefetches.Wait()
	s.chunks.Wait()
}

// Reset clears both caches.
func (s *Service) Reset() {
	s.Wait()
	s.chunks.Reset()
	s.counts.Reset()
}

// prefetch warms chunk index in the background. Failures are logged at
// debug level and otherwise ignored.
func (s *Service) prefetch(index int) {
	if chunk, ok := s.chunks.Peek(index); ok && s.chunks.fresh(chunk) {
		return
	}
	s.prefetches.Go(func() {
		if _, err := s.chunks.Get(context.Background(), index); err != nil {
			s.log.Debug("prefetch failed", "chunk", index, "error", err)
		}
	})
}
