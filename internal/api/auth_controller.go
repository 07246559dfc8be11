package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/auth"
)

// AuthController 登录与当前用户
type AuthController struct {
	authenticator auth.Authenticator
	cookieName    string
	secureCookie  bool
}

// NewAuthController 创建认证控制器
func NewAuthController(authenticator auth.Authenticator, cookieName string, secureCookie bool) *AuthController {
	if cookieName == "" {
		cookieName = auth.DefaultCookieName
	}
	return &AuthController{authenticator: authenticator, cookieName: cookieName, secureCookie: secureCookie}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验凭证, 返回令牌并写入会话 cookie
func (a *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := a.authenticator.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Error(c, http.StatusUnauthorized, "invalid credentials", "")
			return
		}
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "internal server error", "")
		return
	}

	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.cookieName, result.Token, maxAge, "/", "", a.secureCookie, true)
	Success(c, result)
}

// Logout 注销当前凭证并清除 cookie
func (a *AuthController) Logout(c *gin.Context) {
	credential := auth.ExtractCredential(c, a.cookieName)
	if credential != "" {
		if err := a.authenticator.Logout(c.Request.Context(), credential); err != nil {
			_ = c.Error(err)
			Error(c, http.StatusInternalServerError, "internal server error", "")
			return
		}
	}
	c.SetCookie(a.cookieName, "", -1, "/", "", a.secureCookie, true)
	Success(c, nil)
}

// Me 返回当前主体
func (a *AuthController) Me(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	Success(c, p)
}
