package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MartinPaviot/Nareo-sub004/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxClientIDLen = 128
)

// AttachTraceContext assigns the request and trace ids echoed in response
// headers and access logs. An active span's trace id wins over the client
// header so logs line up with exported traces; the span is tagged with the
// request id and, on course routes, the course id.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := clientID(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}

		span := trace.SpanFromContext(c.Request.Context())
		traceID := ""
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = clientID(c.GetHeader(headerTraceID))
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		attrs := []attribute.KeyValue{attribute.String("request.id", reqID)}
		if courseID := courseParam(c); courseID != "" {
			attrs = append(attrs, attribute.String("course.id", courseID))
		}
		span.SetAttributes(attrs...)

		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// clientID accepts a caller-supplied id only when it is short and printable.
func clientID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxClientIDLen {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}

// courseParam returns the :id of /api/courses/:id routes.
func courseParam(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), "/api/courses/:id") {
		return ""
	}
	return c.Param("id")
}
