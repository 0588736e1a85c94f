package helper

import (
	"fmt"
	"time"
)

// RequestIdKey is the gin context key under which the per-request id is stored.
const RequestIdKey = "X-Request-Id"

// GenRequestID returns a request id of the form req_<subsecond-millis>.
// The id is only used for log correlation, not for uniqueness guarantees.
func GenRequestID() string {
	return fmt.Sprintf("req_%03d", time.Now().UnixMilli()%1000)
}

// GetTimestamp returns the current unix timestamp in seconds.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// MessageWithRequestId appends the request id to a client-facing message.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}
