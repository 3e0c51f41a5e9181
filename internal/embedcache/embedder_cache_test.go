package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
)

type fakeEmbedder struct {
	model string
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) ModelName() string { return f.model }

func TestStoreCacheSavesSecondCall(t *testing.T) {
	inner := &fakeEmbedder{model: "m", vec: []float32{0.1, 0.2}}
	store := cache.New(cache.NewMemoryStore(), config.CacheConfig{ResponseTTLSecs: 1, SearchTTLSecs: 1})
	embedder := WrapStoreCache(inner, store)

	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, vec)

	vec, err = embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, vec)
	require.Equal(t, 1, inner.calls)
}

func TestStoreCachePropagatesEmbedError(t *testing.T) {
	inner := &fakeEmbedder{model: "m", err: errors.New("provider down")}
	store := cache.New(cache.NewMemoryStore(), config.CacheConfig{ResponseTTLSecs: 1, SearchTTLSecs: 1})
	embedder := WrapStoreCache(inner, store)

	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestLRUCacheSavesSecondCall(t *testing.T) {
	inner := &fakeEmbedder{model: "m", vec: []float32{1, 2, 3}}
	embedder := WrapLRUCache(inner, 16, time.Minute)

	_, err := embedder.Embed(context.Background(), "hot text")
	require.NoError(t, err)
	vec, err := embedder.Embed(context.Background(), "hot text")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
	require.Equal(t, 1, inner.calls)
}

func TestLRUCacheReturnsCopy(t *testing.T) {
	inner := &fakeEmbedder{model: "m", vec: []float32{1, 2, 3}}
	embedder := WrapLRUCache(inner, 16, time.Minute)

	first, err := embedder.Embed(context.Background(), "t")
	require.NoError(t, err)
	first[0] = 99

	second, err := embedder.Embed(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, float32(1), second[0], "mutating a returned vector must not poison the cache")
}

func TestChainedWrappersShareNothingAcrossModels(t *testing.T) {
	a := WrapLRUCache(&fakeEmbedder{model: "model-a", vec: []float32{1}}, 16, time.Minute)
	b := WrapLRUCache(&fakeEmbedder{model: "model-b", vec: []float32{2}}, 16, time.Minute)

	vecA, err := a.Embed(context.Background(), "same text")
	require.NoError(t, err)
	vecB, err := b.Embed(context.Background(), "same text")
	require.NoError(t, err)
	require.NotEqual(t, vecA, vecB)
}
