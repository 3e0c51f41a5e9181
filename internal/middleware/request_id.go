package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns each request an id, echoes it in the response header
// and binds a request-scoped logger carrying it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		logger := logutil.GetLogger(c.Request.Context()).With(zap.String("request_id", rid))
		c.Request = c.Request.WithContext(logutil.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}
