package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

// ErrorSentinel is the terminal user-visible answer emitted when both
// models are unavailable. The orchestrator checks this prefix to avoid
// caching failed generations.
const ErrorSentinel = "Error: unable to generate a response. Please try again later."

const maxContextPassages = 5

type GeneratorConfig struct {
	MaxTokens      int
	Timeout        time.Duration
	EnableFallback bool
}

type chatBackend struct {
	provider IChatProvider
	model    string
	breaker  *Breaker
}

func (b *chatBackend) vendor() string {
	return b.provider.Name() + "/" + b.model
}

// Generator answers questions against retrieved context. The primary and
// fallback models sit behind independent circuit breakers; provider
// auth/quota errors bypass the breakers and surface immediately.
type Generator struct {
	primary  chatBackend
	fallback *chatBackend
	cfg      GeneratorConfig
}

func NewGenerator(primary IChatProvider, primaryModel string, fallback IChatProvider, fallbackModel string, cfg GeneratorConfig) *Generator {
	g := &Generator{
		primary: chatBackend{
			provider: primary,
			model:    primaryModel,
			breaker:  NewBreaker("chat-primary", 3, 60*time.Second, errs.IsConfigError),
		},
		cfg: cfg,
	}
	if cfg.EnableFallback && fallback != nil {
		g.fallback = &chatBackend{
			provider: fallback,
			model:    fallbackModel,
			breaker:  NewBreaker("chat-fallback", 2, 30*time.Second, errs.IsConfigError),
		}
	}
	return g
}

type Request struct {
	Messages []ChatMessage
	Context  []model.SearchResult
	OrgID    string
}

// Complete returns the full answer text and the vendor that produced it.
// Transient failure of both backends yields the ErrorSentinel string with a
// nil error; only configuration errors (auth, quota) are returned as errors.
func (g *Generator) Complete(ctx context.Context, req Request) (text string, vendor string, err error) {
	start := time.Now()
	defer func() {
		g.logInteraction(ctx, req, vendor, start, err)
	}()

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	messages := g.withSystemPrompt(req)

	var out string
	primaryErr := g.primary.breaker.Do(func() error {
		var callErr error
		out, callErr = g.primary.provider.Complete(ctx, g.primary.model, messages, g.cfg.MaxTokens)
		return callErr
	})
	if primaryErr == nil {
		return out, g.primary.vendor(), nil
	}
	if errs.IsConfigError(primaryErr) {
		return "", g.primary.vendor(), primaryErr
	}
	logutil.GetLogger(ctx).Warn("primary model failed", zap.String("vendor", g.primary.vendor()), zap.Error(primaryErr))

	if g.fallback == nil {
		return ErrorSentinel, "", nil
	}
	fallbackErr := g.fallback.breaker.Do(func() error {
		var callErr error
		out, callErr = g.fallback.provider.Complete(ctx, g.fallback.model, messages, g.cfg.MaxTokens)
		return callErr
	})
	if fallbackErr == nil {
		return out, g.fallback.vendor(), nil
	}
	if errs.IsConfigError(fallbackErr) {
		return "", g.fallback.vendor(), fallbackErr
	}
	logutil.GetLogger(ctx).Warn("fallback model failed", zap.String("vendor", g.fallback.vendor()), zap.Error(fallbackErr))
	return ErrorSentinel, "", nil
}

// Stream opens a token stream, falling through primary -> fallback ->
// sentinel. The returned channel is always non-nil, always closed at the
// end, and never delivers an unhandled error: total failure is a one-token
// stream carrying the ErrorSentinel.
func (g *Generator) Stream(ctx context.Context, req Request) (<-chan string, string) {
	start := time.Now()
	messages := g.withSystemPrompt(req)

	if tokens, ok := g.openStream(ctx, &g.primary, messages); ok {
		return g.forward(ctx, req, tokens, g.primary.vendor(), start), g.primary.vendor()
	}
	if g.fallback != nil {
		if tokens, ok := g.openStream(ctx, g.fallback, messages); ok {
			return g.forward(ctx, req, tokens, g.fallback.vendor(), start), g.fallback.vendor()
		}
	}
	out := make(chan string, 1)
	out <- ErrorSentinel
	close(out)
	g.logInteraction(ctx, req, "", start, fmt.Errorf("all chat backends unavailable"))
	return out, ""
}

func (g *Generator) openStream(ctx context.Context, backend *chatBackend, messages []ChatMessage) (<-chan string, bool) {
	var tokens <-chan string
	err := backend.breaker.Do(func() error {
		var callErr error
		tokens, callErr = backend.provider.Stream(ctx, backend.model, messages, g.cfg.MaxTokens)
		return callErr
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("stream open failed", zap.String("vendor", backend.vendor()), zap.Error(err))
		return nil, false
	}
	return tokens, true
}

func (g *Generator) forward(ctx context.Context, req Request, tokens <-chan string, vendor string, start time.Time) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		defer g.logInteraction(ctx, req, vendor, start, nil)
		for token := range tokens {
			select {
			case out <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// logInteraction runs for every invocation, success or failure.
func (g *Generator) logInteraction(ctx context.Context, req Request, vendor string, start time.Time, err error) {
	var inputLen int
	for _, msg := range req.Messages {
		inputLen += len(msg.Content)
	}
	fields := []zap.Field{
		zap.String("org_id", req.OrgID),
		zap.String("vendor", vendor),
		zap.Int("input_len", inputLen),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		logutil.GetLogger(ctx).Warn("chat completion finished", fields...)
		return
	}
	logutil.GetLogger(ctx).Info("chat completion finished", fields...)
}

func (g *Generator) withSystemPrompt(req Request) []ChatMessage {
	system := ChatMessage{Role: "system", Content: BuildSystemPrompt(req.Context)}
	return append([]ChatMessage{system}, req.Messages...)
}

// BuildSystemPrompt grounds the model in the retrieved passages and
// instructs it to answer only from them.
func BuildSystemPrompt(context []model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(`You are an AI document assistant that helps users understand their private documents.
Answer only from the context provided below; it comes from the requesting organization's own uploads.
Guidelines:
- Be concise but comprehensive.
- Cite the source titles you used.
- If the context does not contain the answer, say so.
- Never reference documents outside the provided context.`)
	if len(context) == 0 {
		sb.WriteString("\n\nNo relevant documents were found for this question.")
		return sb.String()
	}
	sb.WriteString("\n\nRelevant context:\n")
	for i, result := range context {
		if i >= maxContextPassages {
			break
		}
		snippet := result.Snippet
		if len(snippet) > 300 {
			snippet = snippet[:300] + "..."
		}
		fmt.Fprintf(&sb, "%d. %s\n   Source: %s\n   Content: %s\n\n", i+1, result.Title, result.Source, snippet)
	}
	return sb.String()
}

// BreakerStatus reports both breakers for the admin surface.
func (g *Generator) BreakerStatus() map[string]interface{} {
	status := map[string]interface{}{
		"primary": map[string]interface{}{
			"state":        g.primary.breaker.State(),
			"fail_counter": g.primary.breaker.Failures(),
		},
	}
	if g.fallback != nil {
		status["fallback"] = map[string]interface{}{
			"state":        g.fallback.breaker.State(),
			"fail_counter": g.fallback.breaker.Failures(),
		}
	}
	return status
}
