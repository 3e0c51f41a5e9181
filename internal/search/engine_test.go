package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/repo"
)

type stubDocs struct {
	docs       map[string]*model.Document
	lexical    []*model.Document
	lexicalErr error
}

func (s *stubDocs) ListByIDs(ctx context.Context, orgID string, docIDs []string) ([]*model.Document, error) {
	var out []*model.Document
	for _, id := range docIDs {
		if doc, ok := s.docs[id]; ok && doc.OrgID == orgID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *stubDocs) LexicalSearch(ctx context.Context, orgID string, terms []string, limit int) ([]*model.Document, error) {
	return s.lexical, s.lexicalErr
}

type stubChunks struct {
	matches []repo.ChunkMatch
	err     error
	calls   int
}

func (s *stubChunks) VectorSearch(ctx context.Context, orgID string, embedding []float32, limit int) ([]repo.ChunkMatch, error) {
	s.calls++
	return s.matches, s.err
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func (s *stubEmbedder) ModelName() string { return "stub-model" }

func newTestEngine(docs *stubDocs, chunks *stubChunks, emb *stubEmbedder) *Engine {
	c := cache.New(cache.NewMemoryStore(), config.CacheConfig{SearchTTLSecs: 3600, ResponseTTLSecs: 86400})
	return NewEngine(docs, chunks, emb, c, config.SearchConfig{DefaultK: 8, MMRLambda: 0.7})
}

func TestSearchRequiresTenant(t *testing.T) {
	engine := newTestEngine(&stubDocs{}, &stubChunks{}, &stubEmbedder{})
	_, err := engine.Search(context.Background(), "anything", 5, "", nil)
	require.ErrorIs(t, err, errs.ErrMissingTenant)
}

func TestSearchVectorPath(t *testing.T) {
	docs := &stubDocs{docs: map[string]*model.Document{
		"d1": {ID: "d1", OrgID: "org-1", Title: "Retention Policy", Source: "policies", Text: "retention rules"},
		"d2": {ID: "d2", OrgID: "org-1", Title: "Access Control", Source: "policies", Text: "access rules"},
	}}
	chunks := &stubChunks{matches: []repo.ChunkMatch{
		{Chunk: model.Chunk{ID: "c1", DocID: "d1", Text: "retention rules text", Embedding: []float32{0.9, 0.436, 0}}, Similarity: 0.9},
		{Chunk: model.Chunk{ID: "c2", DocID: "d2", Text: "access rules text", Embedding: []float32{0.8, -0.6, 0}}, Similarity: 0.8},
	}}
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	engine := newTestEngine(docs, chunks, emb)

	results, err := engine.Search(context.Background(), "retention rules", 2, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "c1", results[0].ID)
	require.Equal(t, "d1", results[0].DocID)
	require.Equal(t, "Retention Policy", results[0].Title)
	require.Equal(t, float32(0.9), results[0].Score)
	require.False(t, results[0].Degraded)
}

func TestSearchCacheHitReflectsDocumentEdits(t *testing.T) {
	docs := &stubDocs{docs: map[string]*model.Document{
		"d1": {ID: "d1", OrgID: "org-1", Title: "Old Title", Text: "retention rules"},
	}}
	chunks := &stubChunks{matches: []repo.ChunkMatch{
		{Chunk: model.Chunk{ID: "c1", DocID: "d1", Text: "retention rules", Embedding: []float32{1, 0}}, Similarity: 0.95},
	}}
	emb := &stubEmbedder{vec: []float32{1, 0}}
	engine := newTestEngine(docs, chunks, emb)

	first, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, "Old Title", first[0].Title)

	// Edit the document, then hit the cached id list. The title must be the
	// live one and no new embedding call is made.
	docs.docs["d1"].Title = "New Title"
	second, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "New Title", second[0].Title)
	require.Equal(t, 1, emb.calls)
	require.Equal(t, 1, chunks.calls)
}

func TestSearchEmbedFailureReturnsEmpty(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	engine := newTestEngine(&stubDocs{}, &stubChunks{}, emb)

	results, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchLexicalFallback(t *testing.T) {
	docs := &stubDocs{
		docs: map[string]*model.Document{},
		lexical: []*model.Document{
			{ID: "d1", OrgID: "org-1", Title: "Retention Policy", Text: "retention rules live here"},
		},
	}
	chunks := &stubChunks{err: errors.New("pgvector unavailable")}
	emb := &stubEmbedder{vec: []float32{1, 0}}
	engine := newTestEngine(docs, chunks, emb)

	results, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Degraded)
	require.Equal(t, float32(0.5), results[0].Score)
}

func TestSearchLexicalFallbackOnNoVectors(t *testing.T) {
	docs := &stubDocs{lexical: []*model.Document{
		{ID: "d1", OrgID: "org-1", Title: "Doc", Text: "retention text"},
	}}
	engine := newTestEngine(docs, &stubChunks{}, &stubEmbedder{vec: []float32{1, 0}})

	results, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Degraded)
}

func TestSearchCacheHitKeepsScoreAndDegraded(t *testing.T) {
	doc := &model.Document{ID: "d1", OrgID: "org-1", Title: "Retention Policy", Text: "retention rules live here"}
	docs := &stubDocs{
		docs:    map[string]*model.Document{"d1": doc},
		lexical: []*model.Document{doc},
	}
	chunks := &stubChunks{err: errors.New("pgvector unavailable")}
	engine := newTestEngine(docs, chunks, &stubEmbedder{vec: []float32{1, 0}})

	first, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.True(t, first[0].Degraded)
	require.Equal(t, float32(0.5), first[0].Score)

	// The cached entry must report the same mode and score as the search
	// that produced it, not dress the fallback up as a vector match.
	second, err := engine.Search(context.Background(), "retention", 5, "org-1", nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.True(t, second[0].Degraded)
	require.Equal(t, float32(0.5), second[0].Score)
	require.Equal(t, 1, chunks.calls)
}

func TestSearchSourceFilter(t *testing.T) {
	docs := &stubDocs{docs: map[string]*model.Document{
		"d1": {ID: "d1", OrgID: "org-1", Title: "A", Source: "policies", Text: "retention"},
		"d2": {ID: "d2", OrgID: "org-1", Title: "B", Source: "wiki", Text: "retention"},
	}}
	chunks := &stubChunks{matches: []repo.ChunkMatch{
		{Chunk: model.Chunk{ID: "c1", DocID: "d1", Text: "retention", Embedding: []float32{1, 0}}, Similarity: 0.9},
		{Chunk: model.Chunk{ID: "c2", DocID: "d2", Text: "retention", Embedding: []float32{0.9, 0.1}}, Similarity: 0.85},
	}}
	engine := newTestEngine(docs, chunks, &stubEmbedder{vec: []float32{1, 0}})

	results, err := engine.Search(context.Background(), "retention", 5, "org-1", &model.SearchFilters{Source: "wiki"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "d2", results[0].DocID)
}
