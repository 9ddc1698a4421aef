package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/subkit/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// quietRoutes are polled constantly and only logged at debug.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type MiddlewareConfig struct {
	// Debug adds the raw handler error to the access log.
	Debug bool
	// ErrorClassifier turns a handler error into a stable, low-cardinality label.
	ErrorClassifier func(err error) string
}

// GinMiddleware assigns a request id and writes one access log line per
// request once the handler chain has finished.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
		}
		if last := c.Errors.Last(); last != nil {
			label := "unclassified"
			if cfg.ErrorClassifier != nil {
				label = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", label))
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		level := zapcore.InfoLevel
		switch {
		case quietRoutes[route]:
			level = zapcore.DebugLevel
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		}
		if ce := FromContext(c.Request.Context()).Check(level, "http request"); ce != nil {
			ce.Write(fields...)
		}
	}
}
