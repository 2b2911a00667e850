// Package store provides the key/value layer session state lives in: a byte
// map with per-key deadlines, plus string-set helpers for per-user indices.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or its deadline has passed.
var ErrNotFound = errors.New("store: key not found")

// ExpiringStore is a string-keyed byte map with per-key time-to-live.
// A ttl <= 0 stores the key without expiry.
type ExpiringStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// AddToSet adds member to the set stored at key and resets the key's ttl.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	// ListSet returns the members of the set at key; a missing key is an empty set.
	ListSet(ctx context.Context, key string) ([]string, error)
	RemoveFromSet(ctx context.Context, key, member string) error
}

// Sweeper is implemented by stores that need proactive eviction of expired keys.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Clock returns the current time. Stores and the registry share one so tests
// can move time forward deterministically.
type Clock func() time.Time
