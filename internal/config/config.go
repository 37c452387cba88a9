// Package config provides configuration management for orderscope.
// It loads settings from environment variables with the ORDERSCOPE_ prefix
// and provides sensible defaults for all configuration options.
//
// A .env file in the working directory is loaded first when present. An
// optional YAML or TOML file can supply values beneath the environment:
// precedence is env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for orderscope.
type Config struct {
	Remote  RemoteConfig      `yaml:"remote" toml:"remote"`
	Cache   CacheConfig       `yaml:"cache" toml:"cache"`
	Search  SearchConfig      `yaml:"search" toml:"search"`
	Storage StorageConfig     `yaml:"storage" toml:"storage"`
	Objects ObjectStoreConfig `yaml:"objects" toml:"objects"`
	Server  ServerConfig      `yaml:"server" toml:"server"`
	Warmer  WarmerConfig      `yaml:"warmer" toml:"warmer"`
	Log     LogConfig         `yaml:"log" toml:"log"`
}

// RemoteConfig describes the remote data service.
type RemoteConfig struct {
	BaseURL        string   `yaml:"base_url" toml:"base_url"`                 // Chunk service URL (default: http://localhost:8787)
	DatasetID      string   `yaml:"dataset_id" toml:"dataset_id"`             // Dataset identifier (default: orders)
	ChunkSource    string   `yaml:"chunk_source" toml:"chunk_source"`         // http, minio or dir (default: http)
	ChunkDir       string   `yaml:"chunk_dir" toml:"chunk_dir"`               // Directory of chunk_N.json files for the dir source (default: ./data/chunks)
	ChunkTimeout   Duration `yaml:"chunk_timeout" toml:"chunk_timeout"`       // Per chunk/count request (default: 15s)
	SearchURL      string   `yaml:"search_url" toml:"search_url"`             // Search index URL (default: BaseURL)
	SearchAPIKey   string   `yaml:"search_api_key" toml:"search_api_key"`     // Search index API key
	SearchTimeout  Duration `yaml:"search_timeout" toml:"search_timeout"`     // Per search request (default: 10s)
	RequestsPerSec float64  `yaml:"requests_per_sec" toml:"requests_per_sec"` // Outbound rate limit, 0 disables (default: 20)
}

// CacheConfig tunes the chunk and count caches.
type CacheConfig struct {
	ChunkSize         int      `yaml:"chunk_size" toml:"chunk_size"`                   // Records per chunk and per page (default: 500)
	ChunkTTL          Duration `yaml:"chunk_ttl" toml:"chunk_ttl"`                     // Chunk freshness (default: 5m)
	CountTTL          Duration `yaml:"count_ttl" toml:"count_ttl"`                     // Chunk count freshness (default: 1h)
	DefaultChunkCount int      `yaml:"default_chunk_count" toml:"default_chunk_count"` // Fallback when the count endpoint fails (default: 140)
	MaxChunks         int      `yaml:"max_chunks" toml:"max_chunks"`                   // In-memory chunk capacity (default: 256)
	RetryAttempts     int      `yaml:"retry_attempts" toml:"retry_attempts"`           // Attempts per chunk fetch (default: 3)
	RetryBaseDelay    Duration `yaml:"retry_base_delay" toml:"retry_base_delay"`       // Linear backoff unit (default: 1s)
	Prefetch          bool     `yaml:"prefetch" toml:"prefetch"`                       // Warm the next page after each page (default: true)
}

// SearchConfig tunes the remote search orchestrator.
type SearchConfig struct {
	HitsPerPage int      `yaml:"hits_per_page" toml:"hits_per_page"` // Hits requested in the single page (default: 1000)
	Debounce    Duration `yaml:"debounce" toml:"debounce"`           // Coalescing window for typed queries (default: 300ms)
}

// StorageConfig selects the key-value persistence backend.
type StorageConfig struct {
	StorageEngine string `yaml:"engine" toml:"engine"`             // none, memory, sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path" toml:"data_path"`       // Directory for the SQLite file (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn" toml:"postgres_dsn"` // DSN when engine is postgres
}

// ObjectStoreConfig configures the MinIO chunk source.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Bucket    string `yaml:"bucket" toml:"bucket"` // default: orderscope
	Prefix    string `yaml:"prefix" toml:"prefix"` // default: DatasetID
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host      string  `yaml:"host" toml:"host"`             // default: 127.0.0.1
	Port      int     `yaml:"port" toml:"port"`             // default: 6464
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // Requests per second (default: 20)
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"` // default: 40
}

// WarmerConfig controls the scheduled cache warmer.
type WarmerConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`   // default: true
	Schedule string `yaml:"schedule" toml:"schedule"` // cron spec (default: @every 10m)
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error (default: info)
}

// Duration is a time.Duration that decodes from strings like "5m" in
// YAML and TOML files.
type Duration time.Duration

// D returns the value as time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler (used by go-toml).
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. A .env file in the working directory is honoured when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaults()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML (.yaml, .yml) or TOML
// (.toml) file, then applies environment overrides on top.
func LoadConfigFile(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config: unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Remote.DatasetID == "" {
		errs = append(errs, errors.New("dataset id is required"))
	}
	if c.Cache.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Cache.ChunkSize))
	}
	if c.Cache.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be at least 1, got %d", c.Cache.RetryAttempts))
	}
	if c.Cache.DefaultChunkCount < 1 {
		errs = append(errs, fmt.Errorf("default chunk count must be at least 1, got %d", c.Cache.DefaultChunkCount))
	}
	if c.Cache.ChunkTTL <= 0 || c.Cache.CountTTL <= 0 {
		errs = append(errs, errors.New("cache ttls must be positive"))
	}
	switch c.Remote.ChunkSource {
	case "http", "minio":
	case "dir":
		if c.Remote.ChunkDir == "" {
			errs = append(errs, errors.New("chunk dir is required for the dir source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chunk source %q", c.Remote.ChunkSource))
	}
	switch c.Storage.StorageEngine {
	case "none", "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.StorageEngine))
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres dsn is required for the postgres engine"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func defaults() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:        "http://localhost:8787",
			DatasetID:      "orders",
			ChunkSource:    "http",
			ChunkDir:       "./data/chunks",
			ChunkTimeout:   Duration(15 * time.Second),
			SearchTimeout:  Duration(10 * time.Second),
			RequestsPerSec: 20,
		},
		Cache: CacheConfig{
			ChunkSize:         500,
			ChunkTTL:          Duration(5 * time.Minute),
			CountTTL:          Duration(time.Hour),
			DefaultChunkCount: 140,
			MaxChunks:         256,
			RetryAttempts:     3,
			RetryBaseDelay:    Duration(time.Second),
			Prefetch:          true,
		},
		Search: SearchConfig{
			HitsPerPage: 1000,
			Debounce:    Duration(300 * time.Millisecond),
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
		},
		Objects: ObjectStoreConfig{
			Bucket: "orderscope",
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      6464,
			RateLimit: 20,
			RateBurst: 40,
		},
		Warmer: WarmerConfig{
			Enabled:  true,
			Schedule: "@every 10m",
		},
		Log: LogConfig{Level: "info"},
	}
}

// applyEnv overlays ORDERSCOPE_* environment variables. Values already on
// cfg act as the defaults.
func applyEnv(cfg *Config) {
	r := &cfg.Remote
	r.BaseURL = getEnv("ORDERSCOPE_REMOTE_URL", r.BaseURL)
	r.DatasetID = getEnv("ORDERSCOPE_DATASET_ID", r.DatasetID)
	r.ChunkSource = getEnv("ORDERSCOPE_CHUNK_SOURCE", r.ChunkSource)
	r.ChunkDir = getEnv("ORDERSCOPE_CHUNK_DIR", r.ChunkDir)
	r.ChunkTimeout = getEnvDuration("ORDERSCOPE_CHUNK_TIMEOUT", r.ChunkTimeout)
	r.SearchURL = getEnv("ORDERSCOPE_SEARCH_URL", r.SearchURL)
	r.SearchAPIKey = getEnv("ORDERSCOPE_SEARCH_API_KEY", r.SearchAPIKey)
	r.SearchTimeout = getEnvDuration("ORDERSCOPE_SEARCH_TIMEOUT", r.SearchTimeout)
	r.RequestsPerSec = getEnvFloat("ORDERSCOPE_REMOTE_RPS", r.RequestsPerSec)
	if r.SearchURL == "" {
		r.SearchURL = r.BaseURL
	}

	c := &cfg.Cache
	c.ChunkSize = getEnvInt("ORDERSCOPE_CHUNK_SIZE", c.ChunkSize)
	c.ChunkTTL = getEnvDuration("ORDERSCOPE_CHUNK_TTL", c.ChunkTTL)
	c.CountTTL = getEnvDuration("ORDERSCOPE_COUNT_TTL", c.CountTTL)
	c.DefaultChunkCount = getEnvInt("ORDERSCOPE_DEFAULT_CHUNK_COUNT", c.DefaultChunkCount)
	c.MaxChunks = getEnvInt("ORDERSCOPE_CHUNK_CACHE_SIZE", c.MaxChunks)
	c.RetryAttempts = getEnvInt("ORDERSCOPE_RETRY_ATTEMPTS", c.RetryAttempts)
	c.RetryBaseDelay = getEnvDuration("ORDERSCOPE_RETRY_BASE_DELAY", c.RetryBaseDelay)
	c.Prefetch = getEnvBool("ORDERSCOPE_PREFETCH", c.Prefetch)

	cfg.Search.HitsPerPage = getEnvInt("ORDERSCOPE_HITS_PER_PAGE", cfg.Search.HitsPerPage)
	cfg.Search.Debounce = getEnvDuration("ORDERSCOPE_SEARCH_DEBOUNCE", cfg.Search.Debounce)

	s := &cfg.Storage
	s.StorageEngine = getEnv("ORDERSCOPE_STORAGE_ENGINE", s.StorageEngine)
	s.DataPath = getEnv("ORDERSCOPE_DATA_PATH", s.DataPath)
	s.PostgresDSN = getEnv("ORDERSCOPE_POSTGRES_DSN", s.PostgresDSN)

	o := &cfg.Objects
	o.Endpoint = getEnv("ORDERSCOPE_MINIO_ENDPOINT", o.Endpoint)
	o.AccessKey = getEnv("ORDERSCOPE_MINIO_ACCESS_KEY", o.AccessKey)
	o.SecretKey = getEnv("ORDERSCOPE_MINIO_SECRET_KEY", o.SecretKey)
	o.Bucket = getEnv("ORDERSCOPE_MINIO_BUCKET", o.Bucket)
	o.Prefix = getEnv("ORDERSCOPE_MINIO_PREFIX", o.Prefix)
	o.UseSSL = getEnvBool("ORDERSCOPE_MINIO_USE_SSL", o.UseSSL)
	if o.Prefix == "" {
		o.Prefix = r.DatasetID
	}

	srv := &cfg.Server
	srv.Host = getEnv("ORDERSCOPE_HOST", srv.Host)
	srv.Port = getEnvInt("ORDERSCOPE_PORT", srv.Port)
	srv.RateLimit = getEnvFloat("ORDERSCOPE_RATE_LIMIT", srv.RateLimit)
	srv.RateBurst = getEnvInt("ORDERSCOPE_RATE_BURST", srv.RateBurst)

	cfg.Warmer.Enabled = getEnvBool("ORDERSCOPE_WARM_ENABLED", cfg.Warmer.Enabled)
	cfg.Warmer.Schedule = getEnv("ORDERSCOPE_WARM_SCHEDULE", cfg.Warmer.Schedule)

	cfg.Log.Level = getEnv("ORDERSCOPE_LOG_LEVEL", cfg.Log.Level)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("250ms", "5m").
func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
