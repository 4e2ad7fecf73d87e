// Package cache is the local key-value cache that keeps sessions and the
// tag catalog across restarts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Cache is a byte-valued key-value store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetJSON decodes the value at key into dst. It reports false when the key is absent.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, c Cache, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	return c.Set(ctx, key, raw)
}
