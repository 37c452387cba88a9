package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
)

func newSource(t *testing.T, handler http.HandlerFunc) *remote.HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return remote.NewHTTPSource(remote.HTTPConfig{
		BaseURL:   srv.URL + "/",
		DatasetID: "orders",
		APIKey:    "secret",
		Timeout:   2 * time.Second,
		Logger:    logger.Discard(),
	})
}

func TestHTTPSource_FetchChunk(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/orders/chunks/3", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": [{"id": "1", "name": "#1"}, {"id": "2", "name": "#2"}, 42]}`))
	})

	records, err := src.FetchChunk(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "#2", records[1].OrderNumber)
}

func TestHTTPSource_MalformedPayloadIsEmptyChunk(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows": "nope"}`))
	})

	records, err := src.FetchChunk(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestHTTPSource_StatusError(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})

	_, err := src.FetchChunk(context.Background(), 999)
	require.Error(t, err)

	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, remote.IsNotFound(err))
}

func TestHTTPSource_NegativeIndex(t *testing.T) {
	var calls int32
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := src.FetchChunk(context.Background(), -1)
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestHTTPSource_ChunkKeys(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/orders/keys", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []string{"chunk_0", "chunk_1", "chunk_2"}})
	})

	keys, err := src.ChunkKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_0", "chunk_1", "chunk_2"}, keys)
}

func TestHTTPSource_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	breaker := remote.NewCircuitBreakerWithConfig(remote.CircuitBreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		Timeout:     time.Minute,
	}, logger.Discard())
	src := remote.NewHTTPSource(remote.HTTPConfig{
		BaseURL:   srv.URL,
		DatasetID: "orders",
		Breaker:   breaker,
		Logger:    logger.Discard(),
	})

	for i := 0; i < 2; i++ {
		_, err := src.FetchChunk(context.Background(), 0)
		require.Error(t, err)
	}
	assert.Equal(t, "open", breaker.State())

	_, err := src.FetchChunk(context.Background(), 0)
	assert.ErrorIs(t, err, remote.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := remote.NewCircuitBreaker("ctx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, "closed", cb.State())
}
