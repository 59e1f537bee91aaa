// Package cacher memoises computed values by key with a per-entry TTL.
package cacher

import (
	"context"
	"time"
)

// FetchFunc computes the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher stores computed values and computes missing ones at most once per
// key among concurrent callers.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores
	// its result for ttl and returns it. Failed fetches are not cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation, passed to fetchFn
	//   - key: The cache key
	//   - ttl: Time-to-live for a freshly fetched value
	//   - fetchFn: Computes the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - The error from fetchFn, or ctx.Err() if ctx is already done
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// ItemCount returns the number of entries, possibly including expired
	// entries that have not been cleaned up yet.
	ItemCount(ctx context.Context) (int, error)
}
