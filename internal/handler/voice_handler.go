package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/filestore"
	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/orchestrator"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

const (
	writeTimeout = 10 * time.Second
	maxFrameSize = 4 << 20
)

type VoiceOrchestrator interface {
	HandleVoiceQuery(ctx context.Context, req orchestrator.VoiceQueryRequest) <-chan orchestrator.Event
}

type VoiceHandler struct {
	orch     VoiceOrchestrator
	files    filestore.Store
	upgrader websocket.Upgrader
}

func NewVoiceHandler(orch VoiceOrchestrator, files filestore.Store) *VoiceHandler {
	return &VoiceHandler{
		orch:  orch,
		files: files,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// clientFrame is an inbound control message. Binary websocket frames carry
// raw audio and skip this envelope entirely.
type clientFrame struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type serverFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Stream upgrades the connection and runs the voice session loop: buffer
// audio frames until a process_audio message, then pipe orchestrator events
// back to the client. One query at a time per connection.
func (h *VoiceHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	ctx := c.Request.Context()
	logger := logutil.GetLogger(ctx)
	orgID := middleware.OrgID(c)
	userID := middleware.UserID(c)
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	h.send(conn, serverFrame{Type: "connection_established", Data: "session " + sessionID, Timestamp: nowMillis()})

	var (
		buffer     []byte
		format     = "wav"
		sampleRate = 16000
	)
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("voice connection dropped", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			buffer = append(buffer, payload...)
			h.send(conn, serverFrame{Type: "audio_received", Data: len(payload), Timestamp: nowMillis()})
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}
		switch frame.Type {
		case "audio_chunk":
			chunk, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				h.sendError(conn, "failed to decode audio data")
				continue
			}
			buffer = append(buffer, chunk...)
			if frame.Format != "" {
				format = frame.Format
			}
			if frame.SampleRate > 0 {
				sampleRate = frame.SampleRate
			}
			h.send(conn, serverFrame{Type: "audio_received", Data: len(chunk), Timestamp: nowMillis()})
		case "process_audio":
			if len(buffer) == 0 {
				h.sendError(conn, "no audio data to process")
				continue
			}
			h.runQuery(ctx, conn, orchestrator.VoiceQueryRequest{
				Audio:      buffer,
				Format:     format,
				SampleRate: sampleRate,
				OrgID:      orgID,
				UserID:     userID,
				SessionID:  sessionID,
			})
			h.saveAudio(ctx, orgID, sessionID, buffer)
			buffer = nil
		case "ping":
			h.send(conn, serverFrame{Type: "pong", Data: "pong", Timestamp: nowMillis()})
		default:
			h.sendError(conn, "unknown message type: "+frame.Type)
		}
	}
}

func (h *VoiceHandler) runQuery(ctx context.Context, conn *websocket.Conn, req orchestrator.VoiceQueryRequest) {
	for ev := range h.orch.HandleVoiceQuery(ctx, req) {
		if !h.send(conn, ev2frame(ev)) {
			return
		}
	}
}

func ev2frame(ev orchestrator.Event) serverFrame {
	return serverFrame{Type: string(ev.Type), Data: ev.Data, Timestamp: ev.Timestamp}
}

func (h *VoiceHandler) send(conn *websocket.Conn, frame serverFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return false
	}
	return true
}

func (h *VoiceHandler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, serverFrame{Type: "error", Data: message, Timestamp: nowMillis()})
}

// saveAudio archives the session recording. Failures never reach the
// client, voice answers do not depend on the blob store.
func (h *VoiceHandler) saveAudio(ctx context.Context, orgID, sessionID string, audio []byte) {
	if h.files == nil || orgID == "" {
		return
	}
	key := orgID + "/audio/" + sessionID + ".raw"
	if err := h.files.Save(ctx, key, bytes.NewReader(audio), int64(len(audio))); err != nil {
		logutil.GetLogger(ctx).Warn("save session audio", zap.String("key", key), zap.Error(err))
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
