// Package router wires the HTTP surface: the OpenAI-compatible /v1 API,
// the Prometheus metrics endpoint and a liveness probe.
package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrelay/agrelay/controller"
)

// streaming endpoints must bypass gzip so SSE frames flush immediately
var gzipExcludedPaths = []string{
	"/v1/chat/completions",
	"/v1/completions",
	"/v1/responses",
}

// SetRouter installs all routes and shared middleware on the engine.
func SetRouter(engine *gin.Engine) {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"*"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	engine.Use(cors.New(corsCfg))
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(gzipExcludedPaths)))

	SetApiRouter(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.NoRoute(controller.RelayNotImplemented)
}

// SetApiRouter installs the OpenAI-compatible surface.
func SetApiRouter(engine *gin.Engine) {
	v1 := engine.Group("/v1")
	v1.POST("/chat/completions", controller.Relay)
	v1.POST("/completions", controller.Relay)
	v1.POST("/responses", controller.Relay)
	v1.POST("/images/generations", controller.Relay)
	v1.POST("/images/edits", controller.Relay)
	v1.GET("/models", controller.Relay)
}
