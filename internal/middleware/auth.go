package middleware

import (
	"context"
	"strings"

	"commUnity/internal/pkg"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey = "user_id"
	TokenCookie      = "token"
)

// Authenticator 把 access token 解析为用户 id
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint64, error)
}

// AuthMiddleware 从 cookie 或 Authorization: Bearer 中取 token；allowQuery 时也接受 ?token=（浏览器 websocket 无法设置请求头）
func AuthMiddleware(auth Authenticator, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, allowQuery)
		if token == "" {
			_ = c.Error(pkg.NewUnauthorizedError("missing session token"))
			c.Abort()
			return
		}

		userID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func extractToken(c *gin.Context, allowQuery bool) string {
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

// UserID 取 AuthMiddleware 注入的用户 id
func UserID(c *gin.Context) uint64 {
	return c.GetUint64(ContextUserIDKey)
}
