package middleware

import (
	"context"
	"log/slog"
	"strings"

	"todopro/internal/api/response"
	"todopro/internal/pkg/apperr"
	"todopro/internal/service"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticator 将 bearer token 解析为请求主体。
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*service.Principal, error)
}

// AuthMiddleware 校验 Authorization: Bearer 头并将主体写入上下文。
func AuthMiddleware(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, logger, apperr.ErrUnauthenticated)
			return
		}

		p, err := auth.Authenticate(c.Request.Context(), bearer)
		if err != nil {
			response.Error(c, logger, err)
			return
		}

		c.Set(principalKey, p)
		c.Set("userID", p.User.ID)
		c.Next()
	}
}

// Principal 返回 AuthMiddleware 写入的主体，未认证时为 nil。
func Principal(c *gin.Context) *service.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*service.Principal)
	return p
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
