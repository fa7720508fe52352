package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dipteshhh/learnease-backend/internal/observability"
)

// Metrics records API counts and latency. Streaming routes are counted as inflight only.
func Metrics(m *observability.Metrics, streams ...string) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	streaming := make(map[string]bool, len(streams))
	for _, s := range streams {
		streaming[s] = true
	}
	return func(c *gin.Context) {
		m.APIInflightInc()
		defer m.APIInflightDec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		if streaming[route] {
			return
		}
		m.ObserveAPI(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
