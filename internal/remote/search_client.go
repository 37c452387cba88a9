package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/pkg/types"
)

// SearchConfig holds configuration for the remote search client.
type SearchConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // default: 10s
	Limiter *rate.Limiter
	Breaker *CircuitBreaker
	Client  *http.Client
	Logger  *slog.Logger
}

// SearchClient implements Searcher with POST {base}/search.
type SearchClient struct {
	cfg SearchConfig
	log *slog.Logger
}

// NewSearchClient creates a new search client with the given configuration.
func NewSearchClient(cfg SearchConfig) *SearchClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: "search"}, cfg.Logger)
	}
	return &SearchClient{cfg: cfg, log: logger.OrDefault(cfg.Logger)}
}

// Search sends req to the index and returns its hits. Hits that are not
// JSON objects are skipped. A response without a hits array is an empty
// result; a body that is not JSON is an error.
func (c *SearchClient) Search(ctx context.Context, req SearchRequest) ([]types.SearchHit, error) {
	result, err := c.cfg.Breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("remote search: %w", err)
	}
	return result.([]types.SearchHit), nil
}

func (c *SearchClient) search(ctx context.Context, sr SearchRequest) ([]types.SearchHit, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	body, err := doRequest(c.cfg.Client, req)
	if err != nil {
		return nil, err
	}

	var respData struct {
		Hits json.RawMessage `json:"hits"`
	}
	if err := json.Unmarshal(body, &respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var raw []json.RawMessage
	if len(respData.Hits) == 0 || json.Unmarshal(respData.Hits, &raw) != nil {
		c.log.Warn("search response has no hits array, treating as empty", "query", sr.Query)
		return []types.SearchHit{}, nil
	}

	hits := make([]types.SearchHit, 0, len(raw))
	for _, item := range raw {
		m, err := decodeObject(item)
		if err != nil {
			continue
		}
		hits = append(hits, hitFromObject(m))
	}
	return hits, nil
}

var _ Searcher = (*SearchClient)(nil)
