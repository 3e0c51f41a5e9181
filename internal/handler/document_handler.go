package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/response"
	"github.com/proxi-ai/proxi/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type createDocumentRequest struct {
	Title    string            `json:"title"`
	Source   string            `json:"source"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

type updateDocumentRequest struct {
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), middleware.OrgID(c), service.CreateDocumentRequest{
		Title:    req.Title,
		Source:   req.Source,
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Update(c *gin.Context) {
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), middleware.OrgID(c), c.Param("id"), service.UpdateDocumentRequest{
		Title:    req.Title,
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), middleware.OrgID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit := parseUint(c.Query("limit"))
	offset := parseUint(c.Query("offset"))
	docs, err := h.documents.List(c.Request.Context(), middleware.OrgID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": docs})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), middleware.OrgID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

func parseUint(value string) uint {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0
	}
	return uint(parsed)
}
