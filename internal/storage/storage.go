// Package storage provides the persistent key-value layer backing the
// client-side device registry. The contract mirrors what the registry
// needs from browser-style local storage: string keys, opaque JSON
// values, absent keys read as "no data", and (where the backend supports
// it) a notification when another process changes a key.
package storage

import (
	"context"
	"encoding/json"
)

// KV is a persistent key-value store.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// GetJSON decodes the value at key into out. An absent key or an
// undecodable value leaves out untouched and returns false; stored
// garbage is treated as "no data", never surfaced as an error.
func GetJSON(ctx context.Context, kv KV, key string, out any) bool {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, raw)
}
