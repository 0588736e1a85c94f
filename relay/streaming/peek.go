package streaming

import (
	"context"
	"strings"
	"time"
)

// RetrySignal tells the orchestrator to abandon this stream and retry the
// whole attempt on another account.
type RetrySignal struct {
	Reason string
}

func (s *RetrySignal) Error() string {
	return s.Reason
}

// IsRetrySignal reports whether err is a peek retry signal.
func IsRetrySignal(err error) bool {
	_, ok := err.(*RetrySignal)
	return ok
}

// isHeartbeat reports whether an SSE frame is a keep-alive comment.
func isHeartbeat(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, ":") || strings.HasPrefix(trimmed, "data: :")
}

// looksLikeError reports whether a frame carries an inline error event.
func looksLikeError(text string) bool {
	return strings.Contains(text, `"error"`)
}

// Peek reads the stream until the first meaningful data chunk, dropping
// empty chunks and heartbeats. Each read is bounded by chunkTimeout. The
// returned prefix must be re-spliced in front of the stream with Prepend.
//
// Failure modes all come back as *RetrySignal: an inline error event, a
// stream that ends before any data, a timeout, or a transport error.
func Peek(ctx context.Context, stream <-chan Chunk, chunkTimeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(chunkTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &RetrySignal{Reason: "Stream error during peek: " + ctx.Err().Error()}
		case <-timer.C:
			return nil, &RetrySignal{Reason: "Timeout waiting for first data"}
		case c, ok := <-stream:
			if !ok {
				return nil, &RetrySignal{Reason: "Empty response stream during peek"}
			}
			if c.Err != nil {
				return nil, &RetrySignal{Reason: "Stream error during peek: " + c.Err.Error()}
			}
			text := string(c.Data)
			if len(strings.TrimSpace(text)) == 0 || isHeartbeat(text) {
				// keep waiting for real data, with a fresh deadline per chunk
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(chunkTimeout)
				continue
			}
			if looksLikeError(text) {
				return nil, &RetrySignal{Reason: "Error event during peek"}
			}
			return c.Data, nil
		}
	}
}
