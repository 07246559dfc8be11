package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultCookieName 会话 cookie 名称
const DefaultCookieName = "crm_session"

// ExtractCredential 优先读取 Bearer 头, 其次读取会话 cookie
func ExtractCredential(c *gin.Context, cookieName string) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if v, err := c.Cookie(cookieName); err == nil {
		return v
	}
	return ""
}

// AuthMiddleware 认证中间件, 解析主体并写入上下文
func AuthMiddleware(resolver PrincipalResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := ExtractCredential(c, cookieName)
		if credential == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing credentials",
			})
			c.Abort()
			return
		}

		p, err := resolver.Resolve(c.Request.Context(), credential)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"code":    401,
					"message": "invalid credentials",
				})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    500,
					"message": "failed to resolve principal",
					"detail":  err.Error(),
				})
			}
			c.Abort()
			return
		}

		SetPrincipal(c, p)
		c.Next()
	}
}
