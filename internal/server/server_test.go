package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/internal/server"
	"github.com/scrypster/orderscope/internal/view"
	"github.com/scrypster/orderscope/pkg/types"
)

// orderSource serves two chunks of three orders each.
type orderSource struct {
	mu      sync.Mutex
	failing bool
}

func (s *orderSource) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *orderSource) FetchChunk(_ context.Context, index int) ([]types.Record, error) {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return nil, errors.New("upstream unavailable")
	}

	all := testOrders()
	if index < 0 || index*3 >= len(all) {
		return nil, &remote.StatusError{StatusCode: http.StatusNotFound, Body: "no such chunk"}
	}
	return all[index*3 : index*3+3], nil
}

func (s *orderSource) ChunkKeys(context.Context) ([]string, error) {
	return []string{"orders/chunk_0.json", "orders/chunk_1.json"}, nil
}

type stubSearcher struct {
	hits []types.SearchHit
	err  error
}

func (s stubSearcher) Search(context.Context, remote.SearchRequest) ([]types.SearchHit, error) {
	return s.hits, s.err
}

func testOrders() []types.Record {
	day := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	order := func(n int, name string, total float64, fs types.FinancialStatus, ful types.FulfillmentStatus) types.Record {
		return types.Record{
			ID:                fmt.Sprintf("o-%d", n),
			OrderNumber:       fmt.Sprintf("#%d", 1000+n),
			CustomerName:      name,
			Email:             strings.ToLower(strings.Fields(name)[0]) + "@example.com",
			Total:             total,
			Currency:          "USD",
			CreatedAt:         day.AddDate(0, 0, n),
			UpdatedAt:         day.AddDate(0, 0, n),
			FinancialStatus:   fs,
			FulfillmentStatus: ful,
		}
	}
	return []types.Record{
		order(1, "Jane Doe", 120, types.FinancialPaid, types.FulfillmentFulfilled),
		order(2, "John Smith", 40, types.FinancialPending, types.FulfillmentUnfulfilled),
		order(3, "Mary Janeway", 980, types.FinancialRefunded, types.FulfillmentPartial),
		order(4, "Li Wei", 15, types.FinancialPaid, types.FulfillmentUnfulfilled),
		order(5, "Ann Lee", 300, types.FinancialPaid, types.FulfillmentFulfilled),
		order(6, "Bo Chen", 75, types.FinancialPending, types.FulfillmentUnfulfilled),
	}
}

type fixture struct {
	src *orderSource
	srv *server.Server
	url string
}

func newFixture(t *testing.T, searcher remote.Searcher, opts server.Options) *fixture {
	t.Helper()

	src := &orderSource{}
	log := logger.Discard()
	chunks, err := dataset.NewChunkCache(src, dataset.ChunkCacheConfig{
		DatasetID:     "orders",
		RetryAttempts: 1,
		Logger:        log,
	})
	require.NoError(t, err)
	counts := dataset.NewCountCache(src, dataset.CountCacheConfig{DatasetID: "orders", Logger: log})
	svc := dataset.NewService(chunks, counts, dataset.ServiceConfig{ChunkSize: 3, Logger: log})

	orchestrator := search.NewOrchestrator(searcher, search.Options{DatasetID: "orders", Logger: log})
	opts.Logger = log
	srv := server.New(svc, orchestrator, view.NewResolver(orchestrator, log), opts)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{src: src, srv: srv, url: ts.URL}
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp
}

func postJSON(t *testing.T, url string, body any, dst any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp
}

func recordIDs(records []types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// ============================================================================
// HTTP API
// ============================================================================

func TestServer_HealthAndSecurityHeaders(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var body map[string]any
	resp := getJSON(t, f.url+"/api/health", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 2.0, body["totalChunks"])

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, value := range expected {
		assert.Equal(t, value, resp.Header.Get(name), name)
	}
}

func TestServer_Page(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var page dataset.Page
	resp := getJSON(t, f.url+"/api/page?page=2", &page)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"o-4", "o-5", "o-6"}, recordIDs(page.Records))
	assert.Equal(t, 2, page.TotalChunks)
	assert.Equal(t, 1, page.CurrentChunk)
	assert.False(t, page.HasMore)
	assert.False(t, page.Corrected)
}

func TestServer_PageCorrected(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var page dataset.Page
	getJSON(t, f.url+"/api/page?page=9", &page)

	assert.True(t, page.Corrected)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 9, page.RequestedPage)
	assert.Equal(t, "o-6", page.Records[len(page.Records)-1].ID)
}

func TestServer_PageFetchFailure(t *testing.T) {
	f := newFixture(t, nil, server.Options{})
	f.src.setFailing(true)

	var body server.ErrorResponse
	resp := getJSON(t, f.url+"/api/page?page=1", &body)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Bad Gateway", body.Code)
	assert.Contains(t, body.Details["error"], "upstream unavailable")
}

func TestServer_Search(t *testing.T) {
	f := newFixture(t, stubSearcher{hits: []types.SearchHit{{ObjectID: "o-2"}}}, server.Options{})

	var body server.SearchResponse
	resp := getJSON(t, f.url+"/api/search?q=%20John%20&page=1", &body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "john", body.Query)
	assert.Equal(t, []string{"o-2"}, recordIDs(body.Records))
}

func TestServer_SearchFallsBackToPage(t *testing.T) {
	f := newFixture(t, stubSearcher{err: errors.New("index down")}, server.Options{})

	var body server.SearchResponse
	getJSON(t, f.url+"/api/search?q=jane", &body)

	assert.Equal(t, []string{"o-1", "o-3"}, recordIDs(body.Records))
}

func TestServer_Query(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var body server.QueryResponse
	resp := postJSON(t, f.url+"/api/query", server.QueryRequest{Text: "paid AND >100", Page: 1}, &body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Conditions, 2)
	assert.False(t, body.Fallback)
	assert.Equal(t, []string{"o-1"}, recordIDs(body.Records))
}

func TestServer_QueryWithoutConditions(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var body server.QueryResponse
	postJSON(t, f.url+"/api/query", server.QueryRequest{Text: "colour:red", Page: 1}, &body)

	assert.True(t, body.Fallback)
	assert.NotNil(t, body.Conditions)
	assert.Empty(t, body.Conditions)
	assert.NotNil(t, body.Records)
	assert.Empty(t, body.Records)
}

func TestServer_QueryRejectsBadBody(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	resp, err := http.Post(f.url+"/api/query", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_View(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	var res view.Result
	resp := postJSON(t, f.url+"/api/view", server.ViewRequest{State: view.State{Query: "paid"}, Page: 2}, &res)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, view.SourceLocalQuery, res.Source)
	assert.Equal(t, []string{"o-4", "o-5"}, recordIDs(res.Records))
}

func TestServer_ViewInvalidState(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	st := view.State{Columns: []view.ColumnFilter{{Column: "colour", Kind: view.FilterExact, Value: "red"}}}
	var body server.ErrorResponse
	resp := postJSON(t, f.url+"/api/view", server.ViewRequest{State: st, Page: 1}, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid view state", body.Error)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil, server.Options{})

	resp := getJSON(t, f.url+"/api/query", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	f := newFixture(t, nil, server.Options{RateLimit: 0.001, RateBurst: 1})

	first := getJSON(t, f.url+"/api/health", nil)
	second := getJSON(t, f.url+"/api/health", nil)

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestServer_CacheReset(t *testing.T) {
	f := newFixture(t, nil, server.Options{})
	getJSON(t, f.url+"/api/page?page=1", nil)

	resp := postJSON(t, f.url+"/api/cache/reset", struct{}{}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// ============================================================================
// Search stream
// ============================================================================

func dialStream(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.url, "http")+"/ws/search", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestSearchStream_AnswersOnlyLatestQuery(t *testing.T) {
	f := newFixture(t, stubSearcher{err: errors.New("index down")}, server.Options{Debounce: 50 * time.Millisecond})
	conn := dialStream(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, q := range []string{"j", "ja", "jan", "jane"} {
		require.NoError(t, wsjson.Write(ctx, conn, server.StreamRequest{Query: q, Page: 1}))
	}

	var resp server.StreamResponse
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	assert.Equal(t, "jane", resp.Query)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, []string{"o-1", "o-3"}, recordIDs(resp.Records))

	quiet, cancelQuiet := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelQuiet()
	var extra server.StreamResponse
	assert.Error(t, wsjson.Read(quiet, conn, &extra), "superseded queries must not be answered")
}

func TestSearchStream_SeparateBursts(t *testing.T) {
	f := newFixture(t, stubSearcher{err: errors.New("index down")}, server.Options{Debounce: 10 * time.Millisecond})
	conn := dialStream(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, want := range []struct {
		query string
		page  int
		ids   []string
	}{
		{"jane", 1, []string{"o-1", "o-3"}},
		{"paid", 2, []string{"o-4", "o-5"}},
	} {
		require.NoError(t, wsjson.Write(ctx, conn, server.StreamRequest{Query: want.query, Page: want.page}))
		var resp server.StreamResponse
		require.NoError(t, wsjson.Read(ctx, conn, &resp))
		assert.Equal(t, want.query, resp.Query)
		assert.Equal(t, want.ids, recordIDs(resp.Records))
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_StartOnRandomPort(t *testing.T) {
	src := &orderSource{}
	log := logger.Discard()
	chunks, err := dataset.NewChunkCache(src, dataset.ChunkCacheConfig{Logger: log})
	require.NoError(t, err)
	svc := dataset.NewService(chunks, dataset.NewCountCache(src, dataset.CountCacheConfig{Logger: log}), dataset.ServiceConfig{ChunkSize: 3, Logger: log})
	orchestrator := search.NewOrchestrator(nil, search.Options{Logger: log})
	srv := server.New(svc, orchestrator, view.NewResolver(orchestrator, log), server.Options{Addr: "127.0.0.1:0", Logger: log})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := srv.Start(ctx)
	require.NoError(t, err)

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
