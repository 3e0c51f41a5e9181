package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type IChatProvider interface {
	Name() string
	Complete(ctx context.Context, model string, messages []ChatMessage, maxTokens int) (string, error)
	// Stream sends token fragments on the returned channel and closes it
	// when the completion ends. A mid-stream failure closes the channel;
	// callers see a short stream, not an error.
	Stream(ctx context.Context, model string, messages []ChatMessage, maxTokens int) (<-chan string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

type ISpeechProvider interface {
	Name() string
	Transcribe(ctx context.Context, model string, audio []byte, format string, sampleRate int) (*Transcription, error)
}

// IEmbedder is an IEmbedProvider bound to one model, so cache layers can
// key by model name without threading it through every call.
type IEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text)
}

func (e *embedder) ModelName() string {
	return e.model
}

type (
	ChatFactory   func(args interface{}) (IChatProvider, error)
	EmbedFactory  func(args interface{}) (IEmbedProvider, error)
	SpeechFactory func(args interface{}) (ISpeechProvider, error)
)

var (
	chatRegistry   = map[string]ChatFactory{}
	embedRegistry  = map[string]EmbedFactory{}
	speechRegistry = map[string]SpeechFactory{}
)

func Register(name string, factory ChatFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	chatRegistry[key] = factory
}

func RegisterEmbed(name string, factory EmbedFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func RegisterSpeech(name string, factory SpeechFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	speechRegistry[key] = factory
}

func NewChatProvider(name string, args interface{}) (IChatProvider, error) {
	factory := chatRegistry[strings.ToLower(strings.TrimSpace(name))]
	if factory == nil {
		return nil, fmt.Errorf("unsupported chat provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	factory := embedRegistry[strings.ToLower(strings.TrimSpace(name))]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func NewSpeechProvider(name string, args interface{}) (ISpeechProvider, error) {
	factory := speechRegistry[strings.ToLower(strings.TrimSpace(name))]
	if factory == nil {
		return nil, fmt.Errorf("unsupported speech provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
