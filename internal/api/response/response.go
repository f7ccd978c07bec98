// Package response 统一 API 的错误响应格式。
package response

import (
	"log/slog"
	"strconv"

	"todopro/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Error 将错误写为 {"error", "errors"?, "retry_after"?} 并中止后续处理。
//
// 未分类错误按 500 返回通用消息，原因只写入日志。
func Error(c *gin.Context, logger *slog.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindUnexpected && logger != nil {
		logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	}

	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["errors"] = appErr.Fields
	}
	if appErr.RetryAfter > 0 {
		body["retry_after"] = appErr.RetryAfter
		c.Header("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	c.AbortWithStatusJSON(appErr.StatusCode, body)
}
