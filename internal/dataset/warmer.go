package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scrypster/orderscope/internal/logger"
)

// Warmer periodically refreshes the chunk count and, once stale, the first
// chunk so the landing page is served from cache.
type Warmer struct {
	svc      *Service
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	log      *slog.Logger
}

// NewWarmer creates a warmer for svc. schedule uses cron syntax or a
// descriptor such as "@every 10m".
func NewWarmer(svc *Service, schedule string, log *slog.Logger) (*Warmer, error) {
	if schedule == "" {
		schedule = "@every 10m"
	}
	w := &Warmer{
		svc:      svc,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  time.Minute,
		log:      logger.OrDefault(log),
	}
	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs an initial warm-up in the background and starts the schedule.
func (w *Warmer) Start() {
	go w.run()
	w.cron.Start()
	w.log.Info("cache warmer started", "schedule", w.schedule)
}

// Stop halts the schedule and waits for a running warm-up to finish or ctx
// to end.
func (w *Warmer) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single warm-up.
func (w *Warmer) RunOnce(ctx context.Context) error {
	total := w.svc.counts.Refresh(ctx)
	first, err := w.svc.chunks.Get(ctx, 0)
	if err != nil {
		return fmt.Errorf("warm chunk 0: %w", err)
	}
	w.log.Debug("cache warmed", "totalChunks", total, "firstChunkRecords", first.Len())
	return nil
}

func (w *Warmer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.RunOnce(ctx); err != nil {
		w.log.Warn("cache warm-up failed", "error", err)
	}
}
