package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/pkg/types"
)

// DirConfig holds configuration for a directory of chunk files.
type DirConfig struct {
	Dir    string
	Logger *slog.Logger
	Now    func() time.Time
}

// DirSource implements ChunkSource over local files named chunk_{index}.json,
// each holding {"data": [...]}. It serves exports dropped on disk and
// mounted volumes.
type DirSource struct {
	cfg DirConfig
	log *slog.Logger
}

// NewDirSource creates a source reading from cfg.Dir.
func NewDirSource(cfg DirConfig) (*DirSource, error) {
	if cfg.Dir == "" {
		return nil, errors.New("chunk directory is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DirSource{cfg: cfg, log: logger.OrDefault(cfg.Logger)}, nil
}

// Dir returns the directory being read.
func (s *DirSource) Dir() string { return s.cfg.Dir }

// ChunkPath returns the file holding chunk index.
func (s *DirSource) ChunkPath(index int) string {
	return filepath.Join(s.cfg.Dir, ChunkFileName(index))
}

// ChunkFileName is the base name of chunk index.
func ChunkFileName(index int) string {
	return fmt.Sprintf("chunk_%d.json", index)
}

// ChunkIndex returns the index encoded in a chunk file name, or -1.
func ChunkIndex(name string) int {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "chunk_") || !strings.HasSuffix(base, ".json") {
		return -1
	}
	return chunkIndexFromKey(base)
}

// FetchChunk reads and normalizes chunk index. A missing file is reported
// as not found.
func (s *DirSource) FetchChunk(ctx context.Context, index int) ([]types.Record, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid chunk index %d", index)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.ChunkPath(index)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fetch chunk %d: %w", index, &StatusError{StatusCode: http.StatusNotFound, Body: path})
	}
	if err != nil {
		return nil, fmt.Errorf("fetch chunk %d: %w", index, err)
	}

	records, stats, malformed := decodeChunkPayload(data, s.cfg.Now())
	if malformed {
		s.log.Warn("chunk file has no data array, treating as empty", "chunk", index, "path", path)
		return []types.Record{}, nil
	}
	if stats.Dropped > 0 {
		s.log.Warn("dropped records that failed normalization", "chunk", index, "dropped", stats.Dropped, "kept", stats.Kept)
	}
	return records, nil
}

// ChunkKeys lists chunk files in the directory, ordered by chunk index.
func (s *DirSource) ChunkKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.cfg.Dir, err)
	}
	var keys []string
	for _, entry := range entries {
		if !entry.IsDir() && ChunkIndex(entry.Name()) >= 0 {
			keys = append(keys, entry.Name())
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return chunkIndexFromKey(keys[i]) < chunkIndexFromKey(keys[j])
	})
	return keys, nil
}

// PutChunk writes records as chunk index. The file is written under a
// temporary name and renamed so watchers never see a partial chunk.
func (s *DirSource) PutChunk(ctx context.Context, index int, records []types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}
	data, err := json.Marshal(map[string]any{"data": records})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk %d: %w", index, err)
	}

	tmp, err := os.CreateTemp(s.cfg.Dir, ".chunk-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if err := os.Rename(tmp.Name(), s.ChunkPath(index)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	s.log.Debug("chunk written", "path", s.ChunkPath(index), "size", len(data))
	return nil
}

var _ ChunkSource = (*DirSource)(nil)
