package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/response"
)

type SearchEngine interface {
	Search(ctx context.Context, query string, k int, orgID string, filters *model.SearchFilters) ([]model.SearchResult, error)
}

type SearchHandler struct {
	engine SearchEngine
}

func NewSearchHandler(engine SearchEngine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

type searchRequest struct {
	Query   string               `json:"query"`
	K       int                  `json:"k"`
	Filters *model.SearchFilters `json:"filters"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	results, err := h.engine.Search(c.Request.Context(), req.Query, req.K, middleware.OrgID(c), req.Filters)
	if err != nil {
		handleError(c, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	response.Success(c, gin.H{"items": results})
}
