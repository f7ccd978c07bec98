package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth 存活探针，不访问外部依赖。
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.App.Version,
	})
}

// handleHealthz 就绪探针，检查数据库与（若配置）Redis。
func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check database failed", "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
		return
	}

	body := gin.H{"status": "healthy", "database": "connected"}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("health check redis failed", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "connected", "redis": "disconnected"})
			return
		}
		body["redis"] = "connected"
	}
	c.JSON(http.StatusOK, body)
}
