package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agrelay/agrelay/common/logger"
	"github.com/agrelay/agrelay/controller"
	relaycontroller "github.com/agrelay/agrelay/relay/controller"
	"github.com/agrelay/agrelay/relay/modelmap"
	"github.com/agrelay/agrelay/relay/token"
)

type staticInvoker struct{ body string }

func (s staticInvoker) Call(context.Context, string, string, any, string) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := token.NewPool([]token.Account{
		{Email: "a@example.com", AccessToken: "tok-a", ProjectID: "proj-a"},
	}, time.Minute)

	inv := staticInvoker{body: `data: {"response":{"candidates":[{"content":{"parts":[{"text":"pong"}]},"finishReason":"STOP"}]}}` + "\n"}
	relayer := relaycontroller.NewRelayer(pool, modelmap.NewRouter(), inv)
	relayer.PeekTimeout = time.Second
	controller.Setup(relayer)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		gmw.SetLogger(c, logger.Logger)
		c.Next()
	})
	SetRouter(engine)
	return engine
}

func TestRouterHealthz(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRouterModels(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "gemini-3-pro-preview")
}

func TestRouterChatCompletionsEndToEnd(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gemini-3-pro-preview","messages":[{"role":"user","content":"ping"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gemini-3-pro-preview", w.Header().Get("X-Mapped-Model"))
	require.Equal(t, "a@example.com", w.Header().Get("X-Account-Email"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "chat.completion", resp["object"])
	require.Contains(t, w.Body.String(), "pong")
}

func TestRouterMetricsExposed(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterUnknownPath(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "api_not_implemented")
}
