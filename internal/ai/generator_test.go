package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type stubChatProvider struct {
	name     string
	reply    string
	err      error
	tokens   []string
	calls    int
}

func (s *stubChatProvider) Name() string { return s.name }

func (s *stubChatProvider) Complete(ctx context.Context, model string, messages []ChatMessage, maxTokens int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubChatProvider) Stream(ctx context.Context, model string, messages []ChatMessage, maxTokens int) (<-chan string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan string, len(s.tokens))
	for _, token := range s.tokens {
		out <- token
	}
	close(out)
	return out, nil
}

func TestCompleteUsesPrimary(t *testing.T) {
	primary := &stubChatProvider{name: "openai", reply: "the answer"}
	fallback := &stubChatProvider{name: "openai", reply: "fallback answer"}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: true})

	text, vendor, err := g.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}, OrgID: "org-1"})
	require.NoError(t, err)
	require.Equal(t, "the answer", text)
	require.Equal(t, "openai/gpt-4", vendor)
	require.Equal(t, 0, fallback.calls)
}

func TestCompleteFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errors.New("connection refused")}
	fallback := &stubChatProvider{name: "openai", reply: "fallback answer"}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: true})

	text, vendor, err := g.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.NoError(t, err)
	require.Equal(t, "fallback answer", text)
	require.Equal(t, "openai/gpt-3.5-turbo", vendor)
}

func TestCompleteSentinelWhenAllFail(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errors.New("down")}
	fallback := &stubChatProvider{name: "openai", err: errors.New("also down")}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: true})

	text, _, err := g.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.NoError(t, err, "total transient failure is a user-visible message, not an error")
	require.Equal(t, ErrorSentinel, text)
}

func TestCompleteSentinelWhenFallbackDisabled(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errors.New("down")}
	fallback := &stubChatProvider{name: "openai", reply: "never used"}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: false})

	text, _, err := g.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.NoError(t, err)
	require.Equal(t, ErrorSentinel, text)
	require.Equal(t, 0, fallback.calls)
}

func TestCompleteSurfacesAuthErrorImmediately(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errs.ErrProviderAuth}
	fallback := &stubChatProvider{name: "openai", reply: "never used"}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: true})

	_, _, err := g.Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.ErrorIs(t, err, errs.ErrProviderAuth)
	require.Equal(t, 0, fallback.calls, "config errors do not trigger fallback")
	require.Equal(t, StateClosed, g.primary.breaker.State(), "config errors do not trip the breaker")
}

func TestBreakerOpenSkipsPrimary(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errors.New("down")}
	fallback := &stubChatProvider{name: "openai", reply: "fallback answer"}
	g := NewGenerator(primary, "gpt-4", fallback, "gpt-3.5-turbo", GeneratorConfig{EnableFallback: true})

	req := Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}}
	for i := 0; i < 3; i++ {
		_, _, err := g.Complete(context.Background(), req)
		require.NoError(t, err)
	}
	require.Equal(t, StateOpen, g.primary.breaker.State())

	callsBefore := primary.calls
	text, _, err := g.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "fallback answer", text)
	require.Equal(t, callsBefore, primary.calls, "open breaker short-circuits the primary call")
}

func TestStreamForwardsTokens(t *testing.T) {
	primary := &stubChatProvider{name: "openai", tokens: []string{"Hel", "lo", "!"}}
	g := NewGenerator(primary, "gpt-4", nil, "", GeneratorConfig{})

	tokens, vendor := g.Stream(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.Equal(t, "openai/gpt-4", vendor)
	var got []string
	for token := range tokens {
		got = append(got, token)
	}
	require.Equal(t, []string{"Hel", "lo", "!"}, got)
}

func TestStreamSentinelWhenAllFail(t *testing.T) {
	primary := &stubChatProvider{name: "openai", err: errors.New("down")}
	g := NewGenerator(primary, "gpt-4", nil, "", GeneratorConfig{})

	tokens, vendor := g.Stream(context.Background(), Request{Messages: []ChatMessage{{Role: "user", Content: "q"}}})
	require.Empty(t, vendor)
	var got []string
	for token := range tokens {
		got = append(got, token)
	}
	require.Equal(t, []string{ErrorSentinel}, got)
}

func TestBuildSystemPromptEmbedsTopFivePassages(t *testing.T) {
	var results []model.SearchResult
	for i := 0; i < 7; i++ {
		results = append(results, model.SearchResult{
			Title:   "Doc " + string(rune('A'+i)),
			Source:  "src",
			Snippet: "content",
		})
	}
	prompt := BuildSystemPrompt(results)
	require.Contains(t, prompt, "Doc A")
	require.Contains(t, prompt, "Doc E")
	require.NotContains(t, prompt, "Doc F", "only the top five passages are embedded")
}

func TestBuildSystemPromptTruncatesLongSnippets(t *testing.T) {
	long := strings.Repeat("x", 500)
	prompt := BuildSystemPrompt([]model.SearchResult{{Title: "T", Source: "s", Snippet: long}})
	require.Contains(t, prompt, strings.Repeat("x", 300)+"...")
	require.NotContains(t, prompt, strings.Repeat("x", 301))
}

func TestBuildSystemPromptNoContext(t *testing.T) {
	prompt := BuildSystemPrompt(nil)
	require.Contains(t, prompt, "No relevant documents were found")
}
