package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
)

// StringData writes a single SSE data frame and flushes it to the client.
func StringData(c *gin.Context, str string) error {
	str = strings.TrimPrefix(str, "data: ")
	str = strings.TrimSuffix(str, "\r")
	c.Render(-1, sseEvent{Data: "data: " + str + "\n\n"})
	return flush(c)
}

// ObjectData marshals the object and writes it as an SSE data frame.
func ObjectData(c *gin.Context, object any) error {
	jsonData, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "marshal sse object")
	}
	return StringData(c, string(jsonData))
}

// RawBytes writes pre-formatted SSE bytes verbatim and flushes.
func RawBytes(c *gin.Context, data []byte) error {
	if _, err := c.Writer.Write(data); err != nil {
		return errors.Wrap(err, "write sse bytes")
	}
	return flush(c)
}

// Done terminates an SSE stream with the OpenAI [DONE] sentinel.
func Done(c *gin.Context) {
	_ = StringData(c, "[DONE]")
}

func flush(c *gin.Context) error {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported by response writer")
	}
	flusher.Flush()
	return nil
}

// sseEvent is a minimal gin render that emits the payload untouched.
type sseEvent struct {
	Data string
}

func (e sseEvent) Render(w http.ResponseWriter) error {
	e.WriteContentType(w)
	_, err := fmt.Fprint(w, e.Data)
	return err
}

func (e sseEvent) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/event-stream")
	}
}
