package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/pkg/types"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// HTTPConfig holds configuration for the HTTP chunk source.
type HTTPConfig struct {
	BaseURL   string
	DatasetID string
	APIKey    string
	Timeout   time.Duration // default: 15s
	Limiter   *rate.Limiter // optional outbound throttle
	Breaker   *CircuitBreaker
	Client    *http.Client
	Logger    *slog.Logger
	Now       func() time.Time
}

// HTTPSource implements ChunkSource against the remote chunk service.
//
//	GET {base}/datasets/{dataset}/chunks/{index} -> {"data": [...]}
//	GET {base}/datasets/{dataset}/keys           -> {"keys": [...]}
type HTTPSource struct {
	cfg HTTPConfig
	log *slog.Logger
}

// NewHTTPSource creates a new HTTP chunk source with the given configuration.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: "chunks"}, cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HTTPSource{cfg: cfg, log: logger.OrDefault(cfg.Logger)}
}

// FetchChunk retrieves and normalizes chunk index.
func (s *HTTPSource) FetchChunk(ctx context.Context, index int) ([]types.Record, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid chunk index %d", index)
	}
	endpoint := fmt.Sprintf("%s/datasets/%s/chunks/%d", s.cfg.BaseURL, url.PathEscape(s.cfg.DatasetID), index)

	result, err := s.cfg.Breaker.Execute(ctx, func() (interface{}, error) {
		return s.get(ctx, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %d: %w", index, err)
	}

	records, stats, malformed := decodeChunkPayload(result.([]byte), s.cfg.Now())
	if malformed {
		s.log.Warn("chunk payload has no data array, treating as empty", "chunk", index)
		return []types.Record{}, nil
	}
	if stats.Dropped > 0 {
		s.log.Warn("dropped records that failed normalization", "chunk", index, "dropped", stats.Dropped, "kept", stats.Kept)
	}
	return records, nil
}

// ChunkKeys lists the available chunk keys.
func (s *HTTPSource) ChunkKeys(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/keys", s.cfg.BaseURL, url.PathEscape(s.cfg.DatasetID))

	result, err := s.cfg.Breaker.Execute(ctx, func() (interface{}, error) {
		return s.get(ctx, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("list chunk keys: %w", err)
	}

	var payload struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(result.([]byte), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode keys response: %w", err)
	}
	return payload.Keys, nil
}

func (s *HTTPSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	return doRequest(s.cfg.Client, req)
}

// doRequest sends req and returns the body of a 2xx response.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// IsNotFound reports whether err is a 404 from the remote service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// chunkIndexFromKey extracts N from keys shaped like ".../chunk_N.json" or
// "chunk:N". It returns -1 when the key carries no index.
func chunkIndexFromKey(key string) int {
	key = strings.TrimSuffix(key, ".json")
	i := strings.LastIndexAny(key, "_:/-")
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return -1
	}
	return n
}

var _ ChunkSource = (*HTTPSource)(nil)
