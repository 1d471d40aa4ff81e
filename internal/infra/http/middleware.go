package http

import (
	"strconv"
	"time"

	"docsign/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// observe records request metrics by route template and logs server errors.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RequestTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		if status >= 500 {
			s.logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}
