package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/agrelay/agrelay/common/helper"
)

// RequestId tags every request with an id, honoring one supplied by the
// client, and echoes it back in the response headers.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Request.Header.Get(helper.RequestIdKey)
		if id == "" {
			id = helper.GenRequestID()
		}
		c.Set(helper.RequestIdKey, id)
		c.Header(helper.RequestIdKey, id)
		c.Next()
	}
}
