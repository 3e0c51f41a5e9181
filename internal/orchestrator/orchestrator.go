package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
	"github.com/proxi-ai/proxi/internal/ratelimit"
)

const maxSources = 5

type Searcher interface {
	Search(ctx context.Context, query string, k int, orgID string, filters *model.SearchFilters) ([]model.SearchResult, error)
}

type Generator interface {
	Complete(ctx context.Context, req ai.Request) (string, string, error)
	Stream(ctx context.Context, req ai.Request) (<-chan string, string)
}

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, format string, sampleRate int) (*ai.Transcription, error)
}

type RateLimiter interface {
	Check(ctx context.Context, orgID, userID string, rpm, burst int) (ratelimit.Decision, error)
	Record(ctx context.Context, orgID, userID string) error
}

type QueryLogStore interface {
	Create(ctx context.Context, log *model.QueryLog) error
}

type OrgStore interface {
	GetByID(ctx context.Context, orgID string) (*model.Organization, error)
}

// Orchestrator drives one query through transcription, rate limiting,
// caching, retrieval, and generation. It holds no per-request state; every
// invocation is independent.
type Orchestrator struct {
	cache       *cache.Cache
	searcher    Searcher
	generator   Generator
	transcriber SpeechToText
	limiter     RateLimiter
	queryLogs   QueryLogStore
	orgs        OrgStore
	defaultK    int
	now         func() time.Time
}

func New(c *cache.Cache, searcher Searcher, generator Generator, transcriber SpeechToText,
	limiter RateLimiter, queryLogs QueryLogStore, orgs OrgStore, defaultK int) *Orchestrator {
	if defaultK <= 0 {
		defaultK = 8
	}
	return &Orchestrator{
		cache:       c,
		searcher:    searcher,
		generator:   generator,
		transcriber: transcriber,
		limiter:     limiter,
		queryLogs:   queryLogs,
		orgs:        orgs,
		defaultK:    defaultK,
		now:         time.Now,
	}
}

type TextQueryRequest struct {
	Query  string
	OrgID  string
	UserID string
}

type VoiceQueryRequest struct {
	Audio      []byte
	Format     string
	SampleRate int
	OrgID      string
	UserID     string
	SessionID  string
}

type ChatResult struct {
	Response  string         `json:"response"`
	Sources   []model.Source `json:"sources"`
	TokensIn  int            `json:"tokens_in"`
	TokensOut int            `json:"tokens_out"`
	Cached    bool           `json:"cached"`
	LatencyMs int64          `json:"latency_ms"`
}

// HandleTextQuery runs the voice state machine collapsed to one synchronous
// call, without intermediate events.
func (o *Orchestrator) HandleTextQuery(ctx context.Context, req TextQueryRequest) (*ChatResult, error) {
	start := o.now()
	if req.OrgID == "" {
		return nil, errs.ErrMissingTenant
	}

	decision := o.checkRateLimit(ctx, req.OrgID, req.UserID)
	if !decision.Allowed {
		return nil, fmt.Errorf("%w, retry in %d seconds", errs.ErrRateLimited, decision.ResetSeconds)
	}
	if err := o.limiter.Record(ctx, req.OrgID, req.UserID); err != nil {
		logutil.GetLogger(ctx).Warn("rate limit record failed", zap.Error(err))
	}

	if cached, ok, _ := o.cache.GetResponse(ctx, req.Query, req.OrgID); ok {
		result := &ChatResult{
			Response:  cached.Response,
			Sources:   cached.Sources,
			TokensIn:  wordCount(req.Query),
			TokensOut: wordCount(cached.Response),
			Cached:    true,
			LatencyMs: o.sinceMs(start),
		}
		o.appendQueryLog(ctx, req.OrgID, req.UserID, req.Query, result, "", "")
		return result, nil
	}

	results, err := o.searcher.Search(ctx, req.Query, o.defaultK, req.OrgID, nil)
	if err != nil {
		if errors.Is(err, errs.ErrMissingTenant) {
			return nil, err
		}
		logutil.GetLogger(ctx).Error("search failed, generating without context", zap.Error(err))
		results = nil
	}

	text, vendor, err := o.generator.Complete(ctx, ai.Request{
		Messages: []ai.ChatMessage{{Role: "user", Content: req.Query}},
		Context:  results,
		OrgID:    req.OrgID,
	})
	if err != nil {
		o.appendQueryLog(ctx, req.OrgID, req.UserID, req.Query, nil, vendor, err.Error())
		return nil, err
	}

	sources := topSources(results)
	o.cacheAnswer(ctx, req.Query, req.OrgID, req.UserID, text, sources)

	result := &ChatResult{
		Response:  text,
		Sources:   sources,
		TokensIn:  wordCount(req.Query),
		TokensOut: wordCount(text),
		LatencyMs: o.sinceMs(start),
	}
	o.appendQueryLog(ctx, req.OrgID, req.UserID, req.Query, result, vendor, "")
	return result, nil
}

// HandleVoiceQuery runs the full streaming state machine. The returned
// channel is always closed when the session ends, whether by completion,
// error, or caller cancellation. Panics inside any stage surface as a
// terminal error event, never as a crash.
func (o *Orchestrator) HandleVoiceQuery(ctx context.Context, req VoiceQueryRequest) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				logutil.GetLogger(ctx).Error("voice query panicked",
					zap.String("session_id", req.SessionID), zap.Any("panic", r))
				o.emit(ctx, events, errorEvent(fmt.Sprintf("an internal error occurred: %v", r), 0))
			}
		}()
		o.runVoiceQuery(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) runVoiceQuery(ctx context.Context, req VoiceQueryRequest, events chan<- Event) {
	start := o.now()

	o.emit(ctx, events, statusEvent("transcribing"))
	tr, err := o.transcriber.Transcribe(ctx, req.Audio, req.Format, req.SampleRate)
	if err != nil {
		o.emit(ctx, events, errorEvent(fmt.Sprintf("transcription failed: %v", err), 0))
		o.appendQueryLog(ctx, req.OrgID, req.UserID, "", nil, "", err.Error())
		return
	}
	transcript := strings.TrimSpace(tr.Text)
	if transcript == "" {
		o.emit(ctx, events, errorEvent("transcription produced no text", 0))
		return
	}
	o.emit(ctx, events, transcriptEvent(transcript, tr.Confidence, tr.Language))

	if req.OrgID != "" {
		decision := o.checkRateLimit(ctx, req.OrgID, req.UserID)
		if !decision.Allowed {
			o.emit(ctx, events, errorEvent(
				fmt.Sprintf("rate limit exceeded, try again in %d seconds", decision.ResetSeconds),
				decision.ResetSeconds))
			return
		}
		if err := o.limiter.Record(ctx, req.OrgID, req.UserID); err != nil {
			logutil.GetLogger(ctx).Warn("rate limit record failed", zap.Error(err))
		}
	}

	o.emit(ctx, events, statusEvent("checking_cache"))
	if cached, ok, _ := o.cache.GetResponse(ctx, transcript, req.OrgID); ok {
		o.emit(ctx, events, chatResponseEvent(cached.Response, cached.Sources, true))
		result := &ChatResult{Response: cached.Response, Cached: true, TokensIn: wordCount(transcript),
			TokensOut: wordCount(cached.Response), LatencyMs: o.sinceMs(start)}
		o.appendQueryLog(ctx, req.OrgID, req.UserID, transcript, result, "", "")
		return
	}

	if req.OrgID == "" {
		o.emit(ctx, events, errorEvent("organization id is required", 0))
		return
	}

	o.emit(ctx, events, statusEvent("searching"))
	results, err := o.searcher.Search(ctx, transcript, o.defaultK, req.OrgID, nil)
	if err != nil {
		if errors.Is(err, errs.ErrMissingTenant) {
			o.emit(ctx, events, errorEvent("organization id is required", 0))
			return
		}
		logutil.GetLogger(ctx).Error("search failed, generating without context", zap.Error(err))
		results = nil
	}
	if len(results) == 0 {
		o.emit(ctx, events, statusEvent("no_documents_found"))
	}

	o.emit(ctx, events, statusEvent("generating"))
	tokens, vendor := o.generator.Stream(ctx, ai.Request{
		Messages: []ai.ChatMessage{{Role: "user", Content: transcript}},
		Context:  results,
		OrgID:    req.OrgID,
	})
	var answer strings.Builder
	for token := range tokens {
		answer.WriteString(token)
		if !o.emit(ctx, events, tokenEvent(token)) {
			return
		}
	}
	response := answer.String()

	sources := topSources(results)
	o.cacheAnswer(ctx, transcript, req.OrgID, req.UserID, response, sources)

	result := &ChatResult{
		Response:  response,
		Sources:   sources,
		TokensIn:  wordCount(transcript),
		TokensOut: wordCount(response),
		LatencyMs: o.sinceMs(start),
	}
	o.appendQueryLog(ctx, req.OrgID, req.UserID, transcript, result, vendor, "")
	o.emit(ctx, events, finalEvent(FinalData{
		Response:   response,
		Sources:    sources,
		Transcript: transcript,
		Confidence: tr.Confidence,
		LatencyMs:  result.LatencyMs,
	}))
}

// emit delivers one event unless the caller has gone away. A false return
// tells the state machine to stop producing.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// checkRateLimit resolves per-org overrides and degrades to allow when the
// org row cannot be read.
func (o *Orchestrator) checkRateLimit(ctx context.Context, orgID, userID string) ratelimit.Decision {
	var rpm, burst int
	if o.orgs != nil {
		if org, err := o.orgs.GetByID(ctx, orgID); err == nil {
			rpm, burst = org.RPM, org.Burst
		}
	}
	decision, err := o.limiter.Check(ctx, orgID, userID, rpm, burst)
	if err != nil {
		logutil.GetLogger(ctx).Warn("rate limit check failed, allowing", zap.Error(err))
		return ratelimit.Decision{Allowed: true}
	}
	return decision
}

// cacheAnswer stores a generated answer unless it is empty or the terminal
// failure message.
func (o *Orchestrator) cacheAnswer(ctx context.Context, query, orgID, userID, answer string, sources []model.Source) {
	if answer == "" || strings.HasPrefix(answer, "Error:") {
		return
	}
	err := o.cache.SetResponse(ctx, query, orgID, &cache.CachedResponse{
		Response: answer,
		Sources:  sources,
		OrgID:    orgID,
		UserID:   userID,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("response cache write failed", zap.Error(err))
	}
}

func (o *Orchestrator) appendQueryLog(ctx context.Context, orgID, userID, input string, result *ChatResult, vendor, errMsg string) {
	if o.queryLogs == nil {
		return
	}
	entry := &model.QueryLog{
		ID:     uuid.NewString(),
		OrgID:  orgID,
		UserID: userID,
		Input:  input,
		Vendor: vendor,
		Error:  errMsg,
		Ctime:  o.now().UnixMilli(),
	}
	if result != nil {
		entry.TokensIn = result.TokensIn
		entry.TokensOut = result.TokensOut
		entry.CacheHit = result.Cached
		entry.LatencyMs = result.LatencyMs
	}
	if err := o.queryLogs.Create(ctx, entry); err != nil {
		logutil.GetLogger(ctx).Warn("query log write failed", zap.Error(err))
	}
}

func (o *Orchestrator) sinceMs(start time.Time) int64 {
	return o.now().Sub(start).Milliseconds()
}

func topSources(results []model.SearchResult) []model.Source {
	if len(results) == 0 {
		return nil
	}
	n := len(results)
	if n > maxSources {
		n = maxSources
	}
	sources := make([]model.Source, 0, n)
	for _, r := range results[:n] {
		sources = append(sources, model.Source{
			Title:   r.Title,
			Source:  r.Source,
			Snippet: r.Snippet,
			Score:   r.Score,
		})
	}
	return sources
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
