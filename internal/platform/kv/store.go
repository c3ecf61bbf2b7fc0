// Package kv provides the key-value primitives behind fan-out rate limiting
// and distribution locks. A Redis-backed store is used when REDIS_URL is set;
// otherwise an in-process store keeps single-node deployments working without
// extra infrastructure.
package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value surface needed by the limiter and the lock.
type Store interface {
	// Incr atomically increments the integer at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL on key. Returns false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL reports the remaining TTL on key, or a negative duration when the
	// key does not exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetNX sets key to value with a TTL only if the key does not already
	// exist. Returns true when the value was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if its current value equals value.
	// Returns true when the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
