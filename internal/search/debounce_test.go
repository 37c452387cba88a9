package search_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/pkg/types"
)

type debounceOutcome struct {
	records []types.Record
	ok      bool
}

func TestDebouncer_CoalescesBurstIntoLastCall(t *testing.T) {
	var calls atomic.Int32
	var lastQuery atomic.Value
	d := search.NewDebouncer(50*time.Millisecond, func(_ context.Context, q string) []types.Record {
		calls.Add(1)
		lastQuery.Store(q)
		return []types.Record{{ID: q}}
	})

	queries := []string{"j", "ja", "jan", "jane"}
	outcomes := make([]debounceOutcome, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			recs, ok := d.Search(context.Background(), q)
			outcomes[i] = debounceOutcome{recs, ok}
		}(i, q)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "jane", lastQuery.Load())
	for i := 0; i < len(queries)-1; i++ {
		assert.False(t, outcomes[i].ok, queries[i])
		assert.Nil(t, outcomes[i].records)
	}
	last := outcomes[len(queries)-1]
	require.True(t, last.ok)
	assert.Equal(t, "jane", last.records[0].ID)
}

func TestDebouncer_DiscardsSupersededInFlightResult(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	d := search.NewDebouncer(10*time.Millisecond, func(_ context.Context, q string) []types.Record {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return []types.Record{{ID: q}}
	})

	first := make(chan debounceOutcome, 1)
	go func() {
		recs, ok := d.Search(context.Background(), "old")
		first <- debounceOutcome{recs, ok}
	}()
	<-started

	second := make(chan debounceOutcome, 1)
	go func() {
		recs, ok := d.Search(context.Background(), "new")
		second <- debounceOutcome{recs, ok}
	}()

	newest := <-second
	require.True(t, newest.ok)
	assert.Equal(t, "new", newest.records[0].ID)

	close(release)
	stale := <-first
	assert.False(t, stale.ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDebouncer_ContextCancelled(t *testing.T) {
	d := search.NewDebouncer(time.Hour, func(context.Context, string) []types.Record {
		t.Error("search should not run")
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := d.Search(ctx, "x")
	assert.False(t, ok)
	d.Stop()
}

func TestDebouncer_ScheduleOrderDecidesLatest(t *testing.T) {
	d := search.NewDebouncer(20*time.Millisecond, func(_ context.Context, q string) []types.Record {
		return []types.Record{{ID: q}}
	})

	first := d.Schedule(context.Background(), "a")
	second := d.Schedule(context.Background(), "ab")

	_, ok := first.Wait()
	assert.False(t, ok)
	recs, ok := second.Wait()
	require.True(t, ok)
	assert.Equal(t, "ab", recs[0].ID)
}
