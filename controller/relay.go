// Package controller exposes the gin entry points and dispatches them to the
// relay orchestrator.
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common/ctxkey"
	relaycontroller "github.com/agrelay/agrelay/relay/controller"
	"github.com/agrelay/agrelay/relay/relaymode"
)

var relayer *relaycontroller.Relayer

// Setup installs the shared relayer used by all handlers. Must run before
// the router starts serving.
func Setup(r *relaycontroller.Relayer) {
	relayer = r
}

// Relay routes an inbound API request to the matching relay handler based on
// its path.
func Relay(c *gin.Context) {
	mode := relaymode.GetByPath(c.Request.URL.Path)
	c.Set(ctxkey.RelayMode, mode)

	switch mode {
	case relaymode.ChatCompletions, relaymode.Completions, relaymode.ResponseAPI:
		relayer.RelayText(c, mode)
	case relaymode.ImagesGenerations:
		relayer.RelayImageGenerations(c)
	case relaymode.ImagesEdits:
		relayer.RelayImageEdits(c)
	case relaymode.ModelList:
		relayer.ListModels(c)
	default:
		RelayNotImplemented(c)
	}
}

// RelayNotImplemented answers unknown /v1 paths with an OpenAI-shaped 404.
func RelayNotImplemented(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": gin.H{
			"message": "API not implemented",
			"type":    "agrelay_error",
			"code":    "api_not_implemented",
		},
	})
}
