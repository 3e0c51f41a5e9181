package ai

import (
	"context"
	"fmt"

	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

// Transcriber binds a speech provider to one model. Transcription failures
// are terminal for the query that carried the audio; they are never
// retried against the same payload.
type Transcriber struct {
	provider ISpeechProvider
	model    string
}

func NewTranscriber(p ISpeechProvider, model string) *Transcriber {
	return &Transcriber{provider: p, model: model}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, format string, sampleRate int) (*Transcription, error) {
	if t == nil || t.provider == nil {
		return nil, errs.ErrAIUnavailable
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", errs.ErrTranscription)
	}
	result, err := t.provider.Transcribe(ctx, t.model, audio, format, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTranscription, err)
	}
	return result, nil
}
