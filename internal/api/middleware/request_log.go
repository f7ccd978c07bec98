package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"todopro/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestLogger 记录请求元数据并上报请求计数与耗时。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		if logger == nil {
			return
		}
		attrs := []any{
			slog.String("method", method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", latency.String()),
		}
		if uid, ok := c.Get("userID"); ok {
			attrs = append(attrs, slog.Any("user_id", uid))
		}
		if status >= 500 {
			logger.Warn("http request", attrs...)
			return
		}
		logger.Info("http request", attrs...)
	}
}
