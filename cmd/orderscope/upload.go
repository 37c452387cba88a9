package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/orderscope/internal/remote"
	"github.com/scrypster/orderscope/pkg/types"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Split an order export into chunks",
	Long: `Reads a JSON export of orders, either an array or an object with a "data"
array, normalizes it and writes it as chunk_0.json, chunk_1.json and so on,
each holding the configured chunk size of orders. Chunks go to the chunk
directory when the dir source is configured and to the MinIO bucket otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	items, err := exportItems(data)
	if err != nil {
		return err
	}
	records, stats := remote.NormalizeRecords(items, time.Now())
	if stats.Dropped > 0 {
		appLog.Warn("dropped orders without identity", "dropped", stats.Dropped)
	}

	ctx, cancel := commandContext()
	defer cancel()
	dst, where, err := openChunkWriter(ctx)
	if err != nil {
		return err
	}

	size := cfg.Cache.ChunkSize
	chunks := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := dst.PutChunk(ctx, chunks, records[start:end]); err != nil {
			return err
		}
		chunks++
	}
	cmd.Printf("uploaded %d orders in %d chunks to %s\n", len(records), chunks, where)
	return nil
}

type chunkWriter interface {
	PutChunk(ctx context.Context, index int, records []types.Record) error
}

// openChunkWriter returns the upload destination and a description of it.
func openChunkWriter(ctx context.Context) (chunkWriter, string, error) {
	if cfg.Remote.ChunkSource == "dir" {
		src, err := openDirSource(cfg, appLog)
		if err != nil {
			return nil, "", err
		}
		return src, src.Dir(), nil
	}

	src, err := openObjectSource(cfg, nil, appLog)
	if err != nil {
		return nil, "", err
	}
	if err := src.Init(ctx); err != nil {
		return nil, "", err
	}
	return src, cfg.Objects.Bucket + "/" + cfg.Objects.Prefix, nil
}

// exportItems accepts a bare array or {"data": [...]}.
func exportItems(data []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	if wrapped.Data == nil {
		return nil, errors.New("export has no data array")
	}
	return wrapped.Data, nil
}
