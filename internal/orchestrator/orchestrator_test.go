package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/ratelimit"
)

type stubSearcher struct {
	results []model.SearchResult
	err     error
	panics  bool
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int, orgID string, filters *model.SearchFilters) ([]model.SearchResult, error) {
	s.calls++
	if s.panics {
		panic("searcher exploded")
	}
	return s.results, s.err
}

type stubGenerator struct {
	text   string
	vendor string
	err    error
	tokens []string
	calls  int
}

func (s *stubGenerator) Complete(ctx context.Context, req ai.Request) (string, string, error) {
	s.calls++
	return s.text, s.vendor, s.err
}

func (s *stubGenerator) Stream(ctx context.Context, req ai.Request) (<-chan string, string) {
	s.calls++
	out := make(chan string, len(s.tokens))
	for _, tok := range s.tokens {
		out <- tok
	}
	close(out)
	return out, s.vendor
}

type stubTranscriber struct {
	text       string
	confidence float64
	err        error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte, format string, sampleRate int) (*ai.Transcription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Transcription{Text: s.text, Confidence: s.confidence, Language: "en"}, nil
}

type stubLimiter struct {
	decision ratelimit.Decision
	recorded int
}

func (s *stubLimiter) Check(ctx context.Context, orgID, userID string, rpm, burst int) (ratelimit.Decision, error) {
	return s.decision, nil
}

func (s *stubLimiter) Record(ctx context.Context, orgID, userID string) error {
	s.recorded++
	return nil
}

type stubQueryLogs struct {
	entries []*model.QueryLog
}

func (s *stubQueryLogs) Create(ctx context.Context, log *model.QueryLog) error {
	s.entries = append(s.entries, log)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	cache    *cache.Cache
	searcher *stubSearcher
	gen      *stubGenerator
	stt      *stubTranscriber
	limiter  *stubLimiter
	logs     *stubQueryLogs
}

func newFixture() *fixture {
	f := &fixture{
		cache: cache.New(cache.NewMemoryStore(), config.CacheConfig{ResponseTTLSecs: 86400, SearchTTLSecs: 3600}),
		searcher: &stubSearcher{results: []model.SearchResult{
			{ID: "c1", DocID: "d1", Title: "Policy", Source: "wiki", Snippet: "retention is six years", Score: 0.9},
		}},
		gen:     &stubGenerator{text: "The retention period is six years.", vendor: "openai/gpt-4o-mini", tokens: []string{"six ", "years"}},
		stt:     &stubTranscriber{text: "what is the retention period", confidence: 0.93},
		limiter: &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 10}},
		logs:    &stubQueryLogs{},
	}
	f.orch = New(f.cache, f.searcher, f.gen, f.stt, f.limiter, f.logs, nil, 8)
	return f
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestTextQueryRequiresTenant(t *testing.T) {
	f := newFixture()
	_, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "hello"})
	require.ErrorIs(t, err, errs.ErrMissingTenant)
}

func TestTextQueryRateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.decision = ratelimit.Decision{Allowed: false, ResetSeconds: 17}

	_, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "hello", OrgID: "org-1"})
	require.ErrorIs(t, err, errs.ErrRateLimited)
	require.Contains(t, err.Error(), "17")
	require.Zero(t, f.limiter.recorded)
}

func TestTextQueryFullFlow(t *testing.T) {
	f := newFixture()
	result, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{
		Query: "what is the retention period", OrgID: "org-1", UserID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, "The retention period is six years.", result.Response)
	require.False(t, result.Cached)
	require.Equal(t, 5, result.TokensIn)
	require.Equal(t, 6, result.TokensOut)
	require.Len(t, result.Sources, 1)
	require.Equal(t, "Policy", result.Sources[0].Title)
	require.Equal(t, 1, f.limiter.recorded)

	require.Len(t, f.logs.entries, 1)
	require.Equal(t, "openai/gpt-4o-mini", f.logs.entries[0].Vendor)
	require.False(t, f.logs.entries[0].CacheHit)

	// The answer is now cached; a second identical query never reaches the
	// generator.
	second, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{
		Query: "what is the retention period", OrgID: "org-1", UserID: "u1",
	})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 1, f.gen.calls)
}

func TestTextQueryCacheIsTenantScoped(t *testing.T) {
	f := newFixture()
	_, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "q", OrgID: "org-1"})
	require.NoError(t, err)

	other, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "q", OrgID: "org-2"})
	require.NoError(t, err)
	require.False(t, other.Cached)
	require.Equal(t, 2, f.gen.calls)
}

func TestTextQuerySentinelNotCached(t *testing.T) {
	f := newFixture()
	f.gen.text = ai.ErrorSentinel
	f.gen.vendor = ""

	result, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "q", OrgID: "org-1"})
	require.NoError(t, err)
	require.Equal(t, ai.ErrorSentinel, result.Response)

	_, ok, _ := f.cache.GetResponse(context.Background(), "q", "org-1")
	require.False(t, ok)
}

func TestTextQuerySearchFailureStillAnswers(t *testing.T) {
	f := newFixture()
	f.searcher.err = errors.New("pgvector down")
	f.searcher.results = nil

	result, err := f.orch.HandleTextQuery(context.Background(), TextQueryRequest{Query: "q", OrgID: "org-1"})
	require.NoError(t, err)
	require.Equal(t, "The retention period is six years.", result.Response)
	require.Empty(t, result.Sources)
}

func TestVoiceQueryEventSequence(t *testing.T) {
	f := newFixture()
	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("audio"), Format: "wav", SampleRate: 16000, OrgID: "org-1", UserID: "u1", SessionID: "s1",
	}))

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []EventType{
		EventStatus, EventTranscript, EventStatus, EventStatus, EventStatus,
		EventToken, EventToken, EventFinal,
	}, types)

	final, ok := events[len(events)-1].Data.(FinalData)
	require.True(t, ok)
	require.Equal(t, "six years", final.Response)
	require.Equal(t, "what is the retention period", final.Transcript)
	require.InDelta(t, 0.93, final.Confidence, 1e-9)
	require.False(t, final.Cached)
	require.Len(t, final.Sources, 1)
}

func TestVoiceQueryTranscriptionErrorTerminates(t *testing.T) {
	f := newFixture()
	f.stt.err = errors.New("bad audio")

	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("x"), OrgID: "org-1",
	}))
	require.Len(t, events, 2)
	require.Equal(t, EventError, events[1].Type)
	require.Zero(t, f.searcher.calls)
}

func TestVoiceQueryRateLimitDeny(t *testing.T) {
	f := newFixture()
	f.limiter.decision = ratelimit.Decision{Allowed: false, ResetSeconds: 42}

	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("x"), OrgID: "org-1",
	}))
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	require.Equal(t, 42, last.Data.(ErrorData).RetryAfter)
	require.Zero(t, f.limiter.recorded)
}

func TestVoiceQueryCacheHitShortCircuits(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.cache.SetResponse(context.Background(), "what is the retention period", "org-1",
		&cache.CachedResponse{Response: "cached answer", OrgID: "org-1"}))

	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("x"), OrgID: "org-1",
	}))
	last := events[len(events)-1]
	require.Equal(t, EventChatResponse, last.Type)
	require.True(t, last.Data.(ChatResponseData).Cached)
	require.Zero(t, f.searcher.calls)
	require.Zero(t, f.gen.calls)
}

func TestVoiceQueryMissingTenantAfterTranscript(t *testing.T) {
	f := newFixture()
	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("x"),
	}))
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	require.Zero(t, f.searcher.calls)
}

func TestVoiceQueryPanicBecomesErrorEvent(t *testing.T) {
	f := newFixture()
	f.searcher.panics = true

	events := collectEvents(t, f.orch.HandleVoiceQuery(context.Background(), VoiceQueryRequest{
		Audio: []byte("x"), OrgID: "org-1",
	}))
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	require.Contains(t, last.Data.(ErrorData).Message, "internal error")
}

func TestVoiceQueryCancelStopsEmission(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := f.orch.HandleVoiceQuery(ctx, VoiceQueryRequest{Audio: []byte("x"), OrgID: "org-1"})
	// The channel must close without blocking even though nothing drains it.
	for range events {
	}
}
