package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/proxi-ai/proxi/internal/middleware"
)

type RouterDeps struct {
	Chat      *ChatHandler
	Voice     *VoiceHandler
	Search    *SearchHandler
	Documents *DocumentHandler
	Admin     *AdminHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/token", deps.Admin.IssueToken)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/chat", deps.Chat.Chat)
	authGroup.GET("/voice/stream", deps.Voice.Stream)
	authGroup.POST("/search", deps.Search.Search)

	authGroup.POST("/documents", deps.Documents.Create)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.PUT("/documents/:id", deps.Documents.Update)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)

	authGroup.GET("/admin/cache/stats", deps.Admin.CacheStats)
	authGroup.POST("/admin/cache/clear", deps.Admin.CacheClear)
	authGroup.POST("/admin/reindex", deps.Admin.Reindex)
	authGroup.GET("/admin/breaker", deps.Admin.BreakerStatus)
	authGroup.GET("/admin/ratelimit", deps.Admin.RateLimitStats)
	authGroup.GET("/admin/query-logs", deps.Admin.QueryLogs)
	authGroup.POST("/admin/orgs", deps.Admin.CreateOrg)
	authGroup.PUT("/admin/orgs/:id/limits", deps.Admin.UpdateOrgLimits)
}
