package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/middleware"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/orchestrator"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type stubOrch struct {
	result  *orchestrator.ChatResult
	err     error
	lastReq orchestrator.TextQueryRequest
}

func (s *stubOrch) HandleTextQuery(_ context.Context, req orchestrator.TextQueryRequest) (*orchestrator.ChatResult, error) {
	s.lastReq = req
	return s.result, s.err
}

type stubEngine struct {
	results []model.SearchResult
	err     error
}

func (s *stubEngine) Search(_ context.Context, _ string, _ int, _ string, _ *model.SearchFilters) ([]model.SearchResult, error) {
	return s.results, s.err
}

func asOrg(orgID, userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextOrgIDKey, orgID)
		c.Set(middleware.ContextUserIDKey, userID)
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChatHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	orch := &stubOrch{result: &orchestrator.ChatResult{Response: "answer", Cached: true}}
	r := gin.New()
	r.POST("/chat", asOrg("org-1", "user-1"), NewChatHandler(orch).Chat)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"query":"what is the refund policy"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":0`)
	require.Contains(t, w.Body.String(), "answer")
	require.Equal(t, "org-1", orch.lastReq.OrgID)
	require.Equal(t, "user-1", orch.lastReq.UserID)
}

func TestChatHandlerEmptyQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/chat", asOrg("org-1", "user-1"), NewChatHandler(&stubOrch{}).Chat)

	w := doJSON(t, r, http.MethodPost, "/chat", `{}`)
	require.Contains(t, w.Body.String(), "query required")
}

func TestChatHandlerRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	orch := &stubOrch{err: fmt.Errorf("%w, retry in 30 seconds", errs.ErrRateLimited)}
	r := gin.New()
	r.POST("/chat", asOrg("org-1", "user-1"), NewChatHandler(orch).Chat)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"query":"q"}`)
	require.Contains(t, w.Body.String(), "retry in 30 seconds")
}

func TestChatHandlerMissingTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	orch := &stubOrch{err: errs.ErrMissingTenant}
	r := gin.New()
	r.POST("/chat", NewChatHandler(orch).Chat)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"query":"q"}`)
	require.Contains(t, w.Body.String(), "organization id is required")
}

func TestSearchHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubEngine{results: []model.SearchResult{{ID: "c1", DocID: "d1", Title: "Doc"}}}
	r := gin.New()
	r.POST("/search", asOrg("org-1", "user-1"), NewSearchHandler(engine).Search)

	w := doJSON(t, r, http.MethodPost, "/search", `{"query":"policy","k":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"doc_id":"d1"`)
}

func TestSearchHandlerEmptyResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/search", asOrg("org-1", "user-1"), NewSearchHandler(&stubEngine{}).Search)

	w := doJSON(t, r, http.MethodPost, "/search", `{"query":"nothing"}`)
	require.Contains(t, w.Body.String(), `"items":[]`)
}

func TestSearchHandlerInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubEngine{err: errors.New("boom")}
	r := gin.New()
	r.POST("/search", asOrg("org-1", "user-1"), NewSearchHandler(engine).Search)

	w := doJSON(t, r, http.MethodPost, "/search", `{"query":"q"}`)
	require.Contains(t, w.Body.String(), "internal error")
	require.NotContains(t, w.Body.String(), "boom")
}
