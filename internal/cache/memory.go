package cache

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time // zero means no expiry
}

// memoryStore is a single-process Store used in tests and small
// deployments. It mirrors the redis implementation's semantics, including
// glob-pattern invalidation and hit/miss accounting.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	windows map[string][]int64
	queues  map[string][][]byte
	hits    int64
	misses  int64

	now func() time.Time
}

func NewMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		windows: make(map[string][]int64),
		queues:  make(map[string][][]byte),
		now:     time.Now,
	}
}

func (s *memoryStore) expired(e memoryEntry) bool {
	return !e.expireAt.IsZero() && s.now().After(e.expireAt)
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		if s.expired(entry) {
			delete(s.entries, key)
		}
		s.misses++
		return nil, errs.ErrNotFound
	}
	s.hits++
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expireAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memoryStore) Invalidate(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var size int64
	for _, entry := range s.entries {
		size += int64(len(entry.value))
	}
	return &Stats{
		UsedMemory: fmt.Sprintf("%dB", size),
		Clients:    1,
		Hits:       s.hits,
		Misses:     s.misses,
	}, nil
}

func (s *memoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	s.windows = make(map[string][]int64)
	s.queues = make(map[string][][]byte)
	return nil
}

func (s *memoryStore) WindowAdd(ctx context.Context, key string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := append(s.windows[key], ts)
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	s.windows[key] = window
	return nil
}

func (s *memoryStore) WindowTrim(ctx context.Context, key string, min int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.windows[key]
	idx := sort.Search(len(window), func(i int) bool { return window[i] >= min })
	s.windows[key] = append([]int64(nil), window[idx:]...)
	return nil
}

func (s *memoryStore) WindowCount(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.windows[key])), nil
}

func (s *memoryStore) WindowOldest(ctx context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.windows[key]
	if len(window) == 0 {
		return 0, false, nil
	}
	return window[0], true, nil
}

func (s *memoryStore) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (s *memoryStore) QueuePush(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.queues[key] = append(s.queues[key], stored)
	return nil
}

func (s *memoryStore) QueuePop(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		queue := s.queues[key]
		if len(queue) > 0 {
			value := queue[0]
			s.queues[key] = queue[1:]
			s.mu.Unlock()
			return value, true, nil
		}
		s.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *memoryStore) Close() error {
	return nil
}
