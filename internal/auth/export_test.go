package auth

import "time"

// SetSessionClock 替换会话认证的时钟
func SetSessionClock(m *SessionManager, now func() time.Time) {
	m.now = now
}

// SetJWTClock 替换 JWT 认证的时钟
func SetJWTClock(m *JWTManager, now func() time.Time) {
	m.now = now
}

// SetRoleCacheClock 替换角色缓存的时钟
func SetRoleCacheClock(c *RoleCache, now func() time.Time) {
	c.now = now
}
