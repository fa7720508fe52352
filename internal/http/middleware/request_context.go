package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dipteshhh/learnease-backend/internal/http/response"
	"github.com/dipteshhh/learnease-backend/internal/platform/ctxutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachRequestContext assigns trace and request ids. The otel span id wins over a fresh one.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if sc := trace.SpanContextFromContext(c.Request.Context()); traceID == "" && sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// RequestLogger writes one line per request. Probe routes log at debug level.
func RequestLogger(log *logger.Logger, probes ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(probes))
	for _, p := range probes {
		quiet[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			fields = append(fields, "trace_id", rd.TraceID, "request_id", rd.RequestID)
			if rd.UserID != uuid.Nil {
				fields = append(fields, "user_id", rd.UserID.String())
			}
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "document_id", id)
		}
		if code := response.ErrorCode(c); code != "" {
			fields = append(fields, "error_code", code)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case quiet[path]:
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
