package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agrelay/agrelay/common/helper"
)

func TestRequestIdGenerated(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(RequestId())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(helper.RequestIdKey))
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(helper.RequestIdKey)
	require.True(t, strings.HasPrefix(id, "req_"))
	require.Equal(t, id, w.Body.String())
}

func TestRequestIdHonorsClientHeader(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(RequestId())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(helper.RequestIdKey, "req_client_supplied")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, "req_client_supplied", w.Header().Get(helper.RequestIdKey))
}
