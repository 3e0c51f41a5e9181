package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
	"go.uber.org/zap"
)

// CachedResponse is the payload stored in the response cache.
type CachedResponse struct {
	Response string         `json:"response"`
	Sources  []model.Source `json:"sources"`
	OrgID    string         `json:"org_id"`
	UserID   string         `json:"user_id"`
}

// Cache is the typed layer over Store used by the search engine and the
// orchestrator. Lookups return (value, ok, err); an unreachable backend
// surfaces as ok=false with a warn log, so callers degrade to a miss
// without special-casing.
type Cache struct {
	store       Store
	responseTTL time.Duration
	searchTTL   time.Duration
}

func New(store Store, cfg config.CacheConfig) *Cache {
	return &Cache{
		store:       store,
		responseTTL: time.Duration(cfg.ResponseTTLSecs) * time.Second,
		searchTTL:   time.Duration(cfg.SearchTTLSecs) * time.Second,
	}
}

func (c *Cache) Store() Store {
	return c.store
}

func (c *Cache) GetResponse(ctx context.Context, query, orgID string) (*CachedResponse, bool, error) {
	if orgID == "" {
		return nil, false, errs.ErrMissingTenant
	}
	data, ok := c.get(ctx, TenantKey(NSResponse, orgID, query))
	if !ok {
		return nil, false, nil
	}
	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logutil.GetLogger(ctx).Warn("discarding undecodable response cache entry", zap.Error(err))
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *Cache) SetResponse(ctx context.Context, query, orgID string, resp *CachedResponse) error {
	if orgID == "" {
		return errs.ErrMissingTenant
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.set(ctx, TenantKey(NSResponse, orgID, query), data, c.responseTTL)
}

// SearchHit is one cached retrieval result: the doc id plus the score it
// carried when first computed. Titles, snippets and metadata are
// re-resolved from live rows at read time.
type SearchHit struct {
	DocID string  `json:"doc_id"`
	Score float32 `json:"score"`
}

// CachedSearch is the payload stored in the search cache. Degraded records
// whether the entry came from the lexical fallback, so cache hits report
// the same mode as the search that produced them.
type CachedSearch struct {
	Hits     []SearchHit `json:"hits"`
	Degraded bool        `json:"degraded"`
}

func (c *Cache) GetSearch(ctx context.Context, query, orgID string) (*CachedSearch, bool, error) {
	if orgID == "" {
		return nil, false, errs.ErrMissingTenant
	}
	data, ok := c.get(ctx, TenantKey(NSSearch, orgID, query))
	if !ok {
		return nil, false, nil
	}
	var entry CachedSearch
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Hits) == 0 {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *Cache) SetSearch(ctx context.Context, query, orgID string, entry *CachedSearch) error {
	if orgID == "" {
		return errs.ErrMissingTenant
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.set(ctx, TenantKey(NSSearch, orgID, query), data, c.searchTTL)
}

func (c *Cache) GetEmbedding(ctx context.Context, modelName, text string) ([]float32, bool) {
	data, ok := c.get(ctx, EmbeddingKey(modelName, text))
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// SetEmbedding stores without TTL: embeddings are deterministic per model
// and only invalidated by an explicit flush or a model change.
func (c *Cache) SetEmbedding(ctx context.Context, modelName, text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.set(ctx, EmbeddingKey(modelName, text), data, 0)
}

// InvalidateOrg drops the org's response and search cache entries. Called
// after any document mutation so stale answers do not outlive their source.
func (c *Cache) InvalidateOrg(ctx context.Context, orgID string) (int64, error) {
	if orgID == "" {
		return 0, errs.ErrMissingTenant
	}
	var total int64
	for _, ns := range []string{NSResponse, NSSearch} {
		n, err := c.store.Invalidate(ctx, ns+":"+orgID+":*")
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	return c.store.Stats(ctx)
}

func (c *Cache) ClearAll(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errs.IsCacheUnavailable(err) {
			logutil.GetLogger(ctx).Warn("cache unavailable, treating as miss", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := c.store.Set(ctx, key, data, ttl)
	if err != nil && errs.IsCacheUnavailable(err) {
		logutil.GetLogger(ctx).Warn("cache unavailable, dropping write", zap.Error(err))
		return nil
	}
	return err
}
