package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/pkg/types"
)

// ObjectConfig holds MinIO connection settings for the object chunk source.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string // object key prefix, usually the dataset id
	Timeout   time.Duration
	Limiter   *rate.Limiter
	Breaker   *CircuitBreaker
	Logger    *slog.Logger
	Now       func() time.Time
}

// ObjectSource implements ChunkSource over an S3-compatible bucket holding
// one object per chunk: {prefix}/chunk_{index}.json, each shaped like the
// HTTP chunk payload.
type ObjectSource struct {
	mc  *minio.Client
	cfg ObjectConfig
	log *slog.Logger
}

// NewObjectSource creates a MinIO-backed chunk source.
func NewObjectSource(cfg ObjectConfig) (*ObjectSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object source: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object source: bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: "objects"}, cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ObjectSource{mc: mc, cfg: cfg, log: logger.OrDefault(cfg.Logger)}, nil
}

// Init creates the bucket if it does not exist.
func (s *ObjectSource) Init(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
		s.log.Info("bucket created", "bucket", s.cfg.Bucket)
	}
	return nil
}

// ObjectKey returns the object name holding chunk index.
func (s *ObjectSource) ObjectKey(index int) string {
	name := fmt.Sprintf("chunk_%d.json", index)
	if s.cfg.Prefix == "" {
		return name
	}
	return s.cfg.Prefix + "/" + name
}

// FetchChunk downloads and normalizes chunk index.
func (s *ObjectSource) FetchChunk(ctx context.Context, index int) ([]types.Record, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid chunk index %d", index)
	}
	key := s.ObjectKey(index)

	result, err := s.cfg.Breaker.Execute(ctx, func() (interface{}, error) {
		return s.download(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %d: %w", index, err)
	}

	records, stats, malformed := decodeChunkPayload(result.([]byte), s.cfg.Now())
	if malformed {
		s.log.Warn("chunk object has no data array, treating as empty", "chunk", index, "key", key)
		return []types.Record{}, nil
	}
	if stats.Dropped > 0 {
		s.log.Warn("dropped records that failed normalization", "chunk", index, "dropped", stats.Dropped, "kept", stats.Kept)
	}
	return records, nil
}

// ChunkKeys lists chunk objects under the prefix, ordered by chunk index.
func (s *ObjectSource) ChunkKeys(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    s.cfg.Prefix + "/",
		Recursive: true,
	}
	if s.cfg.Prefix == "" {
		opts.Prefix = ""
	}

	var keys []string
	for obj := range s.mc.ListObjects(ctx, s.cfg.Bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", s.cfg.Bucket, obj.Err)
		}
		if strings.Contains(obj.Key, "chunk_") && strings.HasSuffix(obj.Key, ".json") {
			keys = append(keys, obj.Key)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return chunkIndexFromKey(keys[i]) < chunkIndexFromKey(keys[j])
	})
	return keys, nil
}

// PutChunk uploads records as chunk index. Used to publish datasets and to
// seed test buckets.
func (s *ObjectSource) PutChunk(ctx context.Context, index int, records []types.Record) error {
	data, err := json.Marshal(map[string]any{"data": records})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk %d: %w", index, err)
	}
	key := s.ObjectKey(index)
	_, err = s.mc.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.cfg.Bucket, key, err)
	}
	s.log.Debug("chunk uploaded", "bucket", s.cfg.Bucket, "key", key, "size", len(data))
	return nil
}

func (s *ObjectSource) download(ctx context.Context, key string) ([]byte, error) {
	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	obj, err := s.mc.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.cfg.Bucket, key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, &StatusError{StatusCode: 404, Body: key}
		}
		return nil, fmt.Errorf("read %s/%s: %w", s.cfg.Bucket, key, err)
	}
	return data, nil
}

var _ ChunkSource = (*ObjectSource)(nil)
