package common

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common/ctxkey"
)

// maxRequestBodyBytes caps inbound JSON bodies. Conversations with inline
// images are the largest legitimate payload; anything bigger is rejected
// before it is buffered in full.
const maxRequestBodyBytes = 32 * 1024 * 1024

// GetRequestBody reads, caps, and caches the request body so every later
// read in the handler chain reuses the same bytes.
func GetRequestBody(c *gin.Context) ([]byte, error) {
	if cached, _ := c.Get(ctxkey.KeyRequestBody); cached != nil {
		return cached.([]byte), nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read request body failed")
	}
	_ = c.Request.Body.Close()
	if len(body) > maxRequestBodyBytes {
		return nil, errors.Errorf("request body exceeds %d bytes", maxRequestBodyBytes)
	}
	c.Set(ctxkey.KeyRequestBody, body)

	return body, nil
}

// UnmarshalBodyReusable decodes the JSON request body into v while keeping
// the body readable for later handlers. The relay's JSON endpoints do not
// negotiate content types; the multipart endpoint binds its form directly.
func UnmarshalBodyReusable(c *gin.Context, v any) error {
	body, err := GetRequestBody(c)
	if err != nil {
		return errors.Wrap(err, "get request body failed")
	}

	if err = LogClientRequestPayload(c, "", DefaultLogBodyLimit); err != nil {
		return errors.Wrap(err, "log client request payload failed")
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "unmarshal request body failed")
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return nil
}

// LogClientRequestPayload emits a DEBUG log for the inbound payload once per
// request, truncating oversized values, and restores the body for reuse.
func LogClientRequestPayload(c *gin.Context, label string, limit int) error {
	if logged, ok := c.Get(ctxkey.ClientRequestPayloadLogged); ok {
		if loggedFlag, ok := logged.(bool); ok && loggedFlag {
			return nil
		}
	}

	body, err := GetRequestBody(c)
	if err != nil {
		return errors.Wrap(err, "get request body failed")
	}

	preview, truncated := SanitizePayloadForLogging(body, limit)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("url", c.Request.URL.String()),
		zap.Int("body_bytes", len(body)),
		zap.Bool("body_truncated", truncated),
		zap.ByteString("body_preview", preview),
	}
	if label != "" {
		fields = append(fields, zap.String("label", label))
	}

	gmw.GetLogger(c).Debug("client request received", fields...)
	c.Set(ctxkey.ClientRequestPayloadLogged, true)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	return nil
}

// SetEventStreamHeaders configures the standard headers required for
// server-sent event responses.
func SetEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}
