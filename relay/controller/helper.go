package controller

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common/helper"
	"github.com/agrelay/agrelay/common/random"
	"github.com/agrelay/agrelay/relay/model"
	"github.com/agrelay/agrelay/relay/streaming"
)

// upstream error bodies are bounded before they reach logs or clients
const maxErrorBodyBytes = 64 * 1024

// respondError writes an OpenAI-shaped error payload and aborts the handler
// chain.
func respondError(c *gin.Context, status int, errType model.ErrorType, message string) {
	c.JSON(status, gin.H{
		"error": model.Error{
			Message: helper.MessageWithRequestId(message, c.GetString(helper.RequestIdKey)),
			Type:    errType,
			Code:    status,
		},
	})
	c.Abort()
}

// passthroughUpstreamError forwards a terminal upstream failure verbatim so
// clients see the backend's own error payload.
func passthroughUpstreamError(c *gin.Context, status int, body []byte, contentType string) {
	if len(body) == 0 {
		respondError(c, status, model.ErrorTypeUpstream, http.StatusText(status))
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, body)
	c.Abort()
}

// readErrorBody drains and closes a failed upstream response body.
func readErrorBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return string(body)
}

// drainChunks consumes an abandoned stream so its translator goroutine can
// finish and release the upstream body.
func drainChunks(stream <-chan streaming.Chunk) {
	for range stream {
	}
}

// newID returns a fresh response id fragment.
func newID() string {
	return random.GetUUID()
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
