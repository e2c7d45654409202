// Package kv defines the flat durable key-value boundary used for summary
// cache persistence, with SQLite and Redis backends.
package kv

import "context"

// Store is a flat key-value store. Keys are deterministic strings combining
// owner, subject and date; values are opaque serialized blobs.
type Store interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
