package middleware

import (
	"log/slog"
	"time"

	"todopro/internal/api/response"
	"todopro/internal/pkg/apperr"
	"todopro/internal/pkg/metrics"
	"todopro/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Throttle 按客户端 IP 限制每分钟请求数，perMinute <= 0 时不限制。
//
// 计数存储不可用时放行。
func Throttle(limiter *ratelimit.Limiter, perMinute int, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}
		key := "throttle:" + c.ClientIP()
		ok, wait, err := limiter.Allow(c.Request.Context(), key, int64(perMinute), time.Minute)
		if err != nil {
			if logger != nil {
				logger.Warn("throttle check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitRejectedTotal.WithLabelValues("throttle").Inc()
			seconds := int((wait + time.Second - 1) / time.Second)
			response.Error(c, logger, apperr.RateLimited("Too many requests.", seconds))
			return
		}
		c.Next()
	}
}
