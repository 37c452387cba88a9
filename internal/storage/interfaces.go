// Package storage defines the external key-value persistence collaborator
// used for opportunistic cross-session caching.
//
// Persistence is best-effort: callers treat every error from a KVStore,
// including ErrNotFound and undecodable values, as a cache miss and go on
// to fetch fresh data.
package storage

import "context"

// KVStore is a byte-oriented key-value store.
type KVStore interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key (upsert semantics).
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources.
	Close() error
}
