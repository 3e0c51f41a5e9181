package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/pkg/errcode"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
	"github.com/proxi-ai/proxi/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, errs.ErrMissingTenant):
		response.Error(c, errcode.ErrMissingTenant, "organization id is required")
	case errors.Is(err, errs.ErrRateLimited):
		response.Error(c, errcode.ErrTooMany, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, errs.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, errs.ErrTranscription):
		response.Error(c, errcode.ErrTranscription, "transcription failed")
	case errs.IsConfigError(err):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
