package orchestrator

import (
	"time"

	"github.com/proxi-ai/proxi/internal/model"
)

type EventType string

const (
	EventStatus       EventType = "status"
	EventTranscript   EventType = "transcript"
	EventToken        EventType = "token"
	EventChatResponse EventType = "chat_response"
	EventFinal        EventType = "final"
	EventError        EventType = "error"
)

// Event is one frame of a voice query stream. Data is one of the *Data
// payload types below, chosen by Type.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

type StatusData struct {
	Stage string `json:"stage"`
}

type TranscriptData struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

type TokenData struct {
	Token string `json:"token"`
}

type ChatResponseData struct {
	Response string         `json:"response"`
	Sources  []model.Source `json:"sources"`
	Cached   bool           `json:"cached"`
}

type FinalData struct {
	Response   string         `json:"response"`
	Sources    []model.Source `json:"sources"`
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	Cached     bool           `json:"cached"`
	LatencyMs  int64          `json:"latency_ms"`
}

type ErrorData struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func newEvent(typ EventType, data interface{}) Event {
	return Event{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
}

func statusEvent(stage string) Event {
	return newEvent(EventStatus, StatusData{Stage: stage})
}

func transcriptEvent(text string, confidence float64, language string) Event {
	return newEvent(EventTranscript, TranscriptData{Text: text, Confidence: confidence, Language: language})
}

func tokenEvent(token string) Event {
	return newEvent(EventToken, TokenData{Token: token})
}

func chatResponseEvent(response string, sources []model.Source, cached bool) Event {
	return newEvent(EventChatResponse, ChatResponseData{Response: response, Sources: sources, Cached: cached})
}

func finalEvent(data FinalData) Event {
	return newEvent(EventFinal, data)
}

func errorEvent(message string, retryAfter int) Event {
	return newEvent(EventError, ErrorData{Message: message, RetryAfter: retryAfter})
}
