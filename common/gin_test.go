package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agrelay/agrelay/common/logger"
)

func newBodyContext(t *testing.T, body string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	gmw.SetLogger(c, logger.Logger)
	return c
}

func TestGetRequestBodyCaches(t *testing.T) {
	t.Parallel()

	c := newBodyContext(t, `{"model":"gemini-3-pro-preview"}`)

	first, err := GetRequestBody(c)
	require.NoError(t, err)
	require.Equal(t, `{"model":"gemini-3-pro-preview"}`, string(first))

	// the underlying reader is drained; the second read must hit the cache
	second, err := GetRequestBody(c)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGetRequestBodyRejectsOversized(t *testing.T) {
	t.Parallel()

	c := newBodyContext(t, strings.Repeat("x", maxRequestBodyBytes+1))

	_, err := GetRequestBody(c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}

func TestUnmarshalBodyReusable(t *testing.T) {
	t.Parallel()

	c := newBodyContext(t, `{"prompt":"a cat"}`)

	var first struct {
		Prompt string `json:"prompt"`
	}
	require.NoError(t, UnmarshalBodyReusable(c, &first))
	require.Equal(t, "a cat", first.Prompt)

	var second map[string]any
	require.NoError(t, UnmarshalBodyReusable(c, &second))
	require.Equal(t, "a cat", second["prompt"])
}
