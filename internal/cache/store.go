package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/proxi-ai/proxi/internal/config"
)

// Stats mirrors the backend's own bookkeeping so the admin surface can
// report cache health without poking the backend directly.
type Stats struct {
	UsedMemory string `json:"used_memory"`
	Clients    int64  `json:"connected_clients"`
	Hits       int64  `json:"keyspace_hits"`
	Misses     int64  `json:"keyspace_misses"`
}

// Store is the low-level key-value contract shared by the response,
// embedding and search caches, the rate limiter and the indexer queue.
// Implementations report unreachable backends as errs.ErrCacheUnavailable;
// callers treat that as a miss and carry on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error

	// Sliding-window primitive: an ordered multiset of unix-second
	// timestamps per key, used by the rate limiter. Records landing in the
	// same second each count.
	WindowAdd(ctx context.Context, key string, ts int64) error
	WindowTrim(ctx context.Context, key string, min int64) error
	WindowCount(ctx context.Context, key string) (int64, error)
	WindowOldest(ctx context.Context, key string) (int64, bool, error)
	Touch(ctx context.Context, key string, ttl time.Duration) error

	// Work-queue primitive used by the indexer.
	QueuePush(ctx context.Context, key string, value []byte) error
	QueuePop(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error)

	Close() error
}

func NewStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "redis":
		return newRedisStore(cfg), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache store type: %s", cfg.Type)
	}
}
