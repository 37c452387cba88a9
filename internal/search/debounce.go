package search

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/orderscope/pkg/types"
)

// DefaultDebounce is the quiet period before a debounced search runs.
const DefaultDebounce = 300 * time.Millisecond

// SearchFunc performs one search.
type SearchFunc func(ctx context.Context, query string) []types.Record

// Debouncer coalesces bursts of searches into the last one.
//
// A call waits for the quiet window. A newer call arriving during the window
// supersedes it before it starts. A newer call arriving while it runs lets it
// finish but discards its result.
type Debouncer struct {
	window time.Duration
	fn     SearchFunc

	mu      sync.Mutex
	gen     uint64
	pending *debouncedCall
}

type debouncedCall struct {
	gen   uint64
	timer *time.Timer
	done  chan debouncedResult
}

type debouncedResult struct {
	records []types.Record
	ok      bool
}

// NewDebouncer wraps fn. A non-positive window means DefaultDebounce.
func NewDebouncer(window time.Duration, fn SearchFunc) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{window: window, fn: fn}
}

// Search schedules a search for q and waits for it. ok is false when a
// newer call superseded this one or ctx ended first; records is then nil.
func (d *Debouncer) Search(ctx context.Context, q string) (records []types.Record, ok bool) {
	return d.Schedule(ctx, q).Wait()
}

// Schedule registers a search for q without waiting for it. Calls supersede
// each other in the order Schedule is called.
func (d *Debouncer) Schedule(ctx context.Context, q string) *Pending {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending.done <- debouncedResult{}
	}
	call := &debouncedCall{gen: d.gen, done: make(chan debouncedResult, 1)}
	call.timer = time.AfterFunc(d.window, func() { d.fire(ctx, call, q) })
	d.pending = call
	return &Pending{ctx: ctx, call: call}
}

// Pending is a scheduled search.
type Pending struct {
	ctx  context.Context
	call *debouncedCall
}

// Wait blocks until the search ran, was superseded, or its context ended.
func (p *Pending) Wait() ([]types.Record, bool) {
	select {
	case res := <-p.call.done:
		return res.records, res.ok
	case <-p.ctx.Done():
		return nil, false
	}
}

// Stop drops a scheduled search that has not started.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending.done <- debouncedResult{}
		d.pending = nil
	}
}

func (d *Debouncer) fire(ctx context.Context, call *debouncedCall, q string) {
	d.mu.Lock()
	if d.pending != call {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	records := d.fn(ctx, q)

	d.mu.Lock()
	latest := d.gen == call.gen
	d.mu.Unlock()

	if !latest {
		call.done <- debouncedResult{}
		return
	}
	call.done <- debouncedResult{records: records, ok: true}
}
