package middleware

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/common/logger"
)

// TraceHeader echoes the request's trace id in the named response header so
// support staff can look a request up from a client report. It must run
// after otelgin; without an active span nothing is written.
func TraceHeader(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if traceID, _ := logger.TraceIDs(c.Request.Context()); traceID != "" && name != "" {
			c.Header(name, traceID)
		}
		c.Next()
	}
}
