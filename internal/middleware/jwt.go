package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/jwt"
	"github.com/proxi-ai/proxi/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextOrgIDKey  = "org_id"
)

// JWTAuth validates the bearer token and stores the tenant and user ids on
// the request context. Websocket clients cannot set headers, so a `token`
// query parameter is accepted as a fallback.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		if claims.OrgID == "" {
			response.Error(c, errcode.ErrMissingTenant, "token carries no organization")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextOrgIDKey, claims.OrgID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// OrgID returns the authenticated tenant id, or "" when the request never
// passed JWTAuth.
func OrgID(c *gin.Context) string {
	if v, ok := c.Get(ContextOrgIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
