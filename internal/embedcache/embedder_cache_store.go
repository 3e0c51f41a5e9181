package embedcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

// WrapStoreCache backs an embedder with the persistent embedding cache.
// Entries are keyed by model name and content hash only; embeddings are
// deterministic per model and tenant-independent, so they are shared.
func WrapStoreCache(e ai.IEmbedder, store *cache.Cache) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &storeEmbedder{next: e, store: store}
}

type storeEmbedder struct {
	next  ai.IEmbedder
	store *cache.Cache
}

func (s *storeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.store.GetEmbedding(ctx, s.next.ModelName(), text); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (store)")
		return vec, nil
	}
	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetEmbedding(ctx, s.next.ModelName(), text, vec); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return vec, nil
}

func (s *storeEmbedder) ModelName() string {
	if s == nil || s.next == nil {
		return ""
	}
	return s.next.ModelName()
}
