package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type redisStore struct {
	cfg config.CacheConfig

	mu     sync.Mutex
	client *redis.Client
}

func newRedisStore(cfg config.CacheConfig) *redisStore {
	return &redisStore{cfg: cfg}
}

// conn establishes the client on first use. Connecting is idempotent; a
// failed ping leaves the store unconnected so the next operation retries.
func (s *redisStore) conn(ctx context.Context) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", errs.ErrCacheUnavailable, err)
	}
	s.client = client
	return s.client, nil
}

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return errs.ErrNotFound
	}
	return fmt.Errorf("%w: %v", errs.ErrCacheUnavailable, err)
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return wrapRedisErr(client.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) Invalidate(ctx context.Context, pattern string) (int64, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var removed int64
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, wrapRedisErr(err)
			}
			removed += n
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, wrapRedisErr(err)
	}
	if len(keys) > 0 {
		n, err := client.Del(ctx, keys...).Result()
		if err != nil {
			return removed, wrapRedisErr(err)
		}
		removed += n
	}
	return removed, nil
}

func (s *redisStore) Stats(ctx context.Context) (*Stats, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	info, err := client.Info(ctx, "memory", "clients", "stats").Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	stats := &Stats{UsedMemory: "N/A"}
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch k {
		case "used_memory_human":
			stats.UsedMemory = v
		case "connected_clients":
			stats.Clients, _ = strconv.ParseInt(v, 10, 64)
		case "keyspace_hits":
			stats.Hits, _ = strconv.ParseInt(v, 10, 64)
		case "keyspace_misses":
			stats.Misses, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	return stats, nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return wrapRedisErr(client.FlushDB(ctx).Err())
}

// WindowAdd appends one entry scored by timestamp. Members are unique so
// records landing in the same second each count toward the window.
func (s *redisStore) WindowAdd(ctx context.Context, key string, ts int64) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	member := redis.Z{Score: float64(ts), Member: uuid.NewString()}
	return wrapRedisErr(client.ZAdd(ctx, key, member).Err())
}

func (s *redisStore) WindowTrim(ctx context.Context, key string, min int64) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	max := strconv.FormatInt(min, 10)
	return wrapRedisErr(client.ZRemRangeByScore(ctx, key, "0", "("+max).Err())
}

func (s *redisStore) WindowCount(ctx context.Context, key string) (int64, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return n, nil
}

func (s *redisStore) WindowOldest(ctx context.Context, key string) (int64, bool, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	members, err := client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, false, wrapRedisErr(err)
	}
	if len(members) == 0 {
		return 0, false, nil
	}
	return int64(members[0].Score), true, nil
}

func (s *redisStore) Touch(ctx context.Context, key string, ttl time.Duration) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return wrapRedisErr(client.Expire(ctx, key, ttl).Err())
}

func (s *redisStore) QueuePush(ctx context.Context, key string, value []byte) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return wrapRedisErr(client.RPush(ctx, key, value).Err())
}

func (s *redisStore) QueuePop(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	res, err := client.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRedisErr(err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return nil, false, nil
	}
	return []byte(res[1]), true, nil
}

func (s *redisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
