package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that the requested key was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExpired indicates that a persisted entry is older than its TTL.
	ErrExpired = errors.New("entry expired")
)

// Envelope is the persisted form of a cached value. It carries its own
// timestamp and TTL so that a reader in a later session can judge freshness
// without knowing the writer's configuration.
type Envelope struct {
	Value      json.RawMessage `json:"value"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	TTLSeconds int64           `json:"ttlSeconds"`
}

// Fresh reports whether the envelope is still within its TTL at now.
func (e *Envelope) Fresh(now time.Time) bool {
	ttl := time.Duration(e.TTLSeconds) * time.Second
	return now.Sub(e.FetchedAt) < ttl
}

// SaveJSON marshals v into an envelope and stores it under key.
func SaveJSON(ctx context.Context, kv KVStore, key string, v any, fetchedAt time.Time, ttl time.Duration) error {
	if kv == nil {
		return ErrInvalidInput
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: failed to marshal %s: %w", key, err)
	}
	data, err := json.Marshal(Envelope{
		Value:      raw,
		FetchedAt:  fetchedAt.UTC(),
		TTLSeconds: int64(ttl / time.Second),
	})
	if err != nil {
		return fmt.Errorf("storage: failed to marshal envelope %s: %w", key, err)
	}
	return kv.Put(ctx, key, data)
}

// LoadJSON reads the envelope under key and decodes its value into dst.
// It returns the envelope's fetch time. A stale envelope yields ErrExpired
// and leaves dst untouched.
func LoadJSON(ctx context.Context, kv KVStore, key string, dst any, now time.Time) (time.Time, error) {
	env, err := loadEnvelope(ctx, kv, key)
	if err != nil {
		return time.Time{}, err
	}
	if !env.Fresh(now) {
		return env.FetchedAt, ErrExpired
	}
	return decodeValue(key, env, dst)
}

// LoadLastJSON is LoadJSON without the freshness check. It serves the last
// value written under key however old it is.
func LoadLastJSON(ctx context.Context, kv KVStore, key string, dst any) (time.Time, error) {
	env, err := loadEnvelope(ctx, kv, key)
	if err != nil {
		return time.Time{}, err
	}
	return decodeValue(key, env, dst)
}

func loadEnvelope(ctx context.Context, kv KVStore, key string) (*Envelope, error) {
	if kv == nil {
		return nil, ErrNotFound
	}
	data, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("storage: corrupt envelope %s: %w", key, err)
	}
	if env.FetchedAt.IsZero() || len(env.Value) == 0 {
		return nil, fmt.Errorf("storage: corrupt envelope %s: missing fields", key)
	}
	return &env, nil
}

func decodeValue(key string, env *Envelope, dst any) (time.Time, error) {
	if err := json.Unmarshal(env.Value, dst); err != nil {
		return time.Time{}, fmt.Errorf("storage: corrupt value %s: %w", key, err)
	}
	return env.FetchedAt, nil
}
