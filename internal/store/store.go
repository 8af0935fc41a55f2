// Package store provides the quote cache: a key→value store with
// per-entry TTL. Two backends are available, an in-process memory map
// and Redis. Backend failures are never fatal to callers; a failed read
// is a cache miss and a failed write is dropped.
package store

import (
	"context"
	"time"
)

// Store is the cache contract consumed by the quote services.
// Values are opaque bytes (the services store JSON-encoded quotes).
// Staleness is evaluated at read time: Get never returns an expired entry,
// but implementations are not required to evict eagerly.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
