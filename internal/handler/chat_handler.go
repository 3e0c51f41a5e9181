package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/orchestrator"
	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/response"
)

type ChatOrchestrator interface {
	HandleTextQuery(ctx context.Context, req orchestrator.TextQueryRequest) (*orchestrator.ChatResult, error)
}

type ChatHandler struct {
	orch ChatOrchestrator
}

func NewChatHandler(orch ChatOrchestrator) *ChatHandler {
	return &ChatHandler{orch: orch}
}

type chatRequest struct {
	Query string `json:"query"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	result, err := h.orch.HandleTextQuery(c.Request.Context(), orchestrator.TextQueryRequest{
		Query:  req.Query,
		OrgID:  middleware.OrgID(c),
		UserID: middleware.UserID(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
