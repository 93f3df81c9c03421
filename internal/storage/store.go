// Package storage provides abstractions for the persistent local store.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys owned by the state engines. Each key is written by exactly one engine.
const (
	KeyCartItems      = "cart_items"
	KeyCartMerchant   = "cart_merchant"
	KeyCartNotes      = "cart_merchant_notes"
	KeyFavorites      = "favorites"
	KeyRecentSearches = "recent_searches"
)

// KVStore is a keyed text store that survives process restarts.
// Values are whole serialized documents; there are no partial writes.
type KVStore interface {
	// Get returns the value stored at key.
	// ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set overwrites the value stored at key.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the store.
	Close() error
}

// GetJSON decodes the JSON document stored at key into dst.
// It returns false without touching dst when the key is absent.
func GetJSON(ctx context.Context, s KVStore, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s KVStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
