// README: Access log and HTTP metrics middleware.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cargoquote/internal/log"
	"cargoquote/internal/metrics"
)

// Logging writes one line per request and records request metrics under the
// matched route pattern, so path parameters do not explode label cardinality.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		}
		l := log.With(c.Request.Context(), logger)
		switch {
		case status >= 500:
			l.Error("request", fields...)
		case status >= 400:
			l.Info("request", fields...)
		default:
			l.Debug("request", fields...)
		}
	}
}
