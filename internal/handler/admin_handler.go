package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/jwt"
	"github.com/proxi-ai/proxi/internal/pkg/response"
	"github.com/proxi-ai/proxi/internal/service"
)

type BreakerReporter interface {
	BreakerStatus() map[string]interface{}
}

type LimiterReporter interface {
	Stats(ctx context.Context, orgID, userID string, rpm int) (map[string]interface{}, error)
}

type OrgAdminStore interface {
	Create(ctx context.Context, org *model.Organization) error
	GetByID(ctx context.Context, orgID string) (*model.Organization, error)
	UpdateLimits(ctx context.Context, orgID string, rpm, burst int) error
}

type QueryLogReader interface {
	ListRecent(ctx context.Context, orgID string, limit uint) ([]model.QueryLog, error)
}

type AdminHandler struct {
	cache     *cache.Cache
	documents *service.DocumentService
	breaker   BreakerReporter
	limiter   LimiterReporter
	orgs      OrgAdminStore
	queryLogs QueryLogReader
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAdminHandler(c *cache.Cache, documents *service.DocumentService, breaker BreakerReporter,
	limiter LimiterReporter, orgs OrgAdminStore, queryLogs QueryLogReader,
	jwtSecret []byte, jwtTTL time.Duration) *AdminHandler {
	return &AdminHandler{
		cache:     c,
		documents: documents,
		breaker:   breaker,
		limiter:   limiter,
		orgs:      orgs,
		queryLogs: queryLogs,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
	}
}

func (h *AdminHandler) CacheStats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *AdminHandler) CacheClear(c *gin.Context) {
	if err := h.cache.ClearAll(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *AdminHandler) Reindex(c *gin.Context) {
	if err := h.documents.Reindex(c.Request.Context(), middleware.OrgID(c)); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"status": "queued"})
}

func (h *AdminHandler) BreakerStatus(c *gin.Context) {
	response.Success(c, h.breaker.BreakerStatus())
}

func (h *AdminHandler) RateLimitStats(c *gin.Context) {
	orgID := middleware.OrgID(c)
	org, err := h.orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	stats, err := h.limiter.Stats(c.Request.Context(), orgID, middleware.UserID(c), org.RPM)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *AdminHandler) QueryLogs(c *gin.Context) {
	limit := parseUint(c.Query("limit"))
	if limit == 0 || limit > 200 {
		limit = 50
	}
	logs, err := h.queryLogs.ListRecent(c.Request.Context(), middleware.OrgID(c), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": logs})
}

type createOrgRequest struct {
	Name  string `json:"name"`
	RPM   int    `json:"rpm"`
	Burst int    `json:"burst"`
}

func (h *AdminHandler) CreateOrg(c *gin.Context) {
	var req createOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		response.Error(c, errcode.ErrInvalid, "name required")
		return
	}
	org := &model.Organization{
		ID:    uuid.NewString(),
		Name:  req.Name,
		RPM:   req.RPM,
		Burst: req.Burst,
		Ctime: time.Now().UnixMilli(),
	}
	if err := h.orgs.Create(c.Request.Context(), org); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, org)
}

type updateLimitsRequest struct {
	RPM   int `json:"rpm"`
	Burst int `json:"burst"`
}

func (h *AdminHandler) UpdateOrgLimits(c *gin.Context) {
	var req updateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.orgs.UpdateLimits(c.Request.Context(), c.Param("id"), req.RPM, req.Burst); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

type tokenRequest struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
}

// IssueToken mints a JWT bound to an existing organization. Credential
// checks live upstream of this service.
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrgID == "" {
		response.Error(c, errcode.ErrInvalid, "org_id required")
		return
	}
	if _, err := h.orgs.GetByID(c.Request.Context(), req.OrgID); err != nil {
		handleError(c, err)
		return
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}
	token, err := jwt.GenerateToken(req.UserID, req.OrgID, h.jwtSecret, h.jwtTTL)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "user_id": req.UserID})
}
