package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

// SystemActor 无人值守时使用的操作人标识
const SystemActor = "system"

// Principal 已认证的操作主体
type Principal struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// DisplayName 优先使用姓名, 否则使用邮箱
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Actor 写入 created_by / author 的标识
func (p *Principal) Actor() string {
	if p == nil || p.Email == "" {
		return SystemActor
	}
	return p.Email
}

// ErrUnauthenticated 凭证无效或缺失
var ErrUnauthenticated = errors.New("unauthenticated")

// PrincipalResolver 把请求凭证解析为主体
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

const principalKey = "principal"

// SetPrincipal 把主体写入 gin 上下文
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// GetPrincipal 从 gin 上下文读取主体
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}
