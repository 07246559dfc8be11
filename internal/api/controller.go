package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/auth"
)

func principalFrom(c *gin.Context) (*auth.Principal, bool) {
	return auth.GetPrincipal(c)
}

// requirePrincipal 读取当前主体, 缺失时返回 401
func requirePrincipal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := principalFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "unauthenticated", "")
		return nil, false
	}
	return p, true
}

// parseIDParam 解析路径中的数字 ID, 非法时返回 400
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid "+name, raw)
		return 0, false
	}
	return uint(id), true
}

// bindJSON 绑定 JSON 请求体, 失败时返回 400
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}
