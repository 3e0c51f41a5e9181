package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
	"github.com/proxi-ai/proxi/internal/repo"
)

const (
	lexicalScore    = 0.5
	maxLexicalTerms = 3
)

type DocumentStore interface {
	ListByIDs(ctx context.Context, orgID string, docIDs []string) ([]*model.Document, error)
	LexicalSearch(ctx context.Context, orgID string, terms []string, limit int) ([]*model.Document, error)
}

type ChunkStore interface {
	VectorSearch(ctx context.Context, orgID string, embedding []float32, limit int) ([]repo.ChunkMatch, error)
}

// Engine answers tenant-scoped semantic queries: vector retrieval over
// chunks, MMR reranking, and a lexical fallback when embeddings are not
// usable.
type Engine struct {
	docs     DocumentStore
	chunks   ChunkStore
	embedder ai.IEmbedder
	cache    *cache.Cache
	defaultK int
	lambda   float32
}

func NewEngine(docs DocumentStore, chunks ChunkStore, embedder ai.IEmbedder, c *cache.Cache, cfg config.SearchConfig) *Engine {
	k := cfg.DefaultK
	if k <= 0 {
		k = 8
	}
	lambda := float32(cfg.MMRLambda)
	if lambda <= 0 || lambda > 1 {
		lambda = 0.7
	}
	return &Engine{
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		cache:    c,
		defaultK: k,
		lambda:   lambda,
	}
}

func (e *Engine) Search(ctx context.Context, query string, k int, orgID string, filters *model.SearchFilters) ([]model.SearchResult, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	if k <= 0 {
		k = e.defaultK
	}
	terms := queryTerms(query)

	if entry, ok, _ := e.cache.GetSearch(ctx, query, orgID); ok {
		return e.resolveCached(ctx, orgID, entry, k, terms, filters)
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		logutil.GetLogger(ctx).Error("embed query failed, returning empty results",
			zap.String("org_id", orgID), zap.Error(err))
		return nil, nil
	}

	matches, err := e.chunks.VectorSearch(ctx, orgID, queryVec, 2*k)
	if err != nil {
		logutil.GetLogger(ctx).Warn("vector search failed, falling back to lexical",
			zap.String("org_id", orgID), zap.Error(err))
		matches = nil
	}
	if len(matches) == 0 {
		return e.lexicalFallback(ctx, query, k, orgID, terms, filters)
	}

	vecs := make([][]float32, len(matches))
	for i, m := range matches {
		vecs[i] = m.Chunk.Embedding
	}
	selected := mmrSelect(queryVec, vecs, k, e.lambda)

	docIDs := make([]string, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	for _, idx := range selected {
		id := matches[idx].Chunk.DocID
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			docIDs = append(docIDs, id)
		}
	}
	docs, err := e.docs.ListByIDs(ctx, orgID, docIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	results := make([]model.SearchResult, 0, len(selected))
	for _, idx := range selected {
		m := matches[idx]
		doc, ok := byID[m.Chunk.DocID]
		if !ok {
			continue
		}
		if filters != nil && filters.Source != "" && doc.Source != filters.Source {
			continue
		}
		results = append(results, model.SearchResult{
			ID:       m.Chunk.ID,
			DocID:    doc.ID,
			Title:    doc.Title,
			Source:   doc.Source,
			Snippet:  buildSnippet(m.Chunk.Text, terms, snippetMaxLen),
			Score:    m.Similarity,
			Metadata: doc.Metadata,
		})
	}

	e.cacheResults(ctx, query, orgID, results)
	return results, nil
}

// resolveCached turns a cached hit list back into results using current
// document rows, so edits made after the cache write still show through.
// Scores and the degraded marker come from the cached entry; a fallback
// result never turns into a vector match just by being served from cache.
func (e *Engine) resolveCached(ctx context.Context, orgID string, entry *cache.CachedSearch, k int, terms []string, filters *model.SearchFilters) ([]model.SearchResult, error) {
	hits := entry.Hits
	if len(hits) > k {
		hits = hits[:k]
	}
	docIDs := make([]string, 0, len(hits))
	scores := make(map[string]float32, len(hits))
	for _, hit := range hits {
		docIDs = append(docIDs, hit.DocID)
		scores[hit.DocID] = hit.Score
	}
	docs, err := e.docs.ListByIDs(ctx, orgID, docIDs)
	if err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(docs))
	for _, doc := range docs {
		if filters != nil && filters.Source != "" && doc.Source != filters.Source {
			continue
		}
		results = append(results, model.SearchResult{
			ID:       doc.ID,
			DocID:    doc.ID,
			Title:    doc.Title,
			Source:   doc.Source,
			Snippet:  buildSnippet(doc.Text, terms, snippetMaxLen),
			Score:    scores[doc.ID],
			Metadata: doc.Metadata,
			Degraded: entry.Degraded,
		})
	}
	return results, nil
}

// lexicalFallback does a stop-word-filtered keyword match over whole
// documents. Results carry a fixed score and the Degraded marker.
func (e *Engine) lexicalFallback(ctx context.Context, query string, k int, orgID string, terms []string, filters *model.SearchFilters) ([]model.SearchResult, error) {
	lexTerms := terms
	if len(lexTerms) > maxLexicalTerms {
		lexTerms = lexTerms[:maxLexicalTerms]
	}
	docs, err := e.docs.LexicalSearch(ctx, orgID, lexTerms, k)
	if err != nil {
		logutil.GetLogger(ctx).Error("lexical search failed",
			zap.String("org_id", orgID), zap.Error(err))
		return nil, nil
	}
	results := make([]model.SearchResult, 0, len(docs))
	for _, doc := range docs {
		if filters != nil && filters.Source != "" && doc.Source != filters.Source {
			continue
		}
		results = append(results, model.SearchResult{
			ID:       doc.ID,
			DocID:    doc.ID,
			Title:    doc.Title,
			Source:   doc.Source,
			Snippet:  buildSnippet(doc.Text, terms, snippetMaxLen),
			Score:    lexicalScore,
			Metadata: doc.Metadata,
			Degraded: true,
		})
	}
	e.cacheResults(ctx, query, orgID, results)
	return results, nil
}

func (e *Engine) cacheResults(ctx context.Context, query, orgID string, results []model.SearchResult) {
	if len(results) == 0 {
		return
	}
	entry := &cache.CachedSearch{Degraded: results[0].Degraded}
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.DocID]; !ok {
			seen[r.DocID] = struct{}{}
			entry.Hits = append(entry.Hits, cache.SearchHit{DocID: r.DocID, Score: r.Score})
		}
	}
	if err := e.cache.SetSearch(ctx, query, orgID, entry); err != nil {
		logutil.GetLogger(ctx).Warn("search cache write failed", zap.Error(err))
	}
}
