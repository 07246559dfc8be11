package auth

import (
	"sync"
	"time"
)

// RoleCache 缓存用户的团队角色映射（team_id -> role）
// 成员关系变更时需要调用 Invalidate
type RoleCache struct {
	cache *sync.Map
	ttl   time.Duration
	now   func() time.Time
}

// cacheEntry 缓存条目
type cacheEntry struct {
	roles     map[uint]string
	expiresAt time.Time
}

// NewRoleCache 创建角色缓存, ttl <= 0 时不缓存
func NewRoleCache(ttl time.Duration) *RoleCache {
	return &RoleCache{
		cache: &sync.Map{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get 获取缓存, 返回副本
func (c *RoleCache) Get(userID uint) (map[uint]string, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	val, found := c.cache.Load(userID)
	if !found {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Delete(userID)
		return nil, false
	}

	out := make(map[uint]string, len(entry.roles))
	for k, v := range entry.roles {
		out[k] = v
	}
	return out, true
}

// Set 设置缓存
func (c *RoleCache) Set(userID uint, roles map[uint]string) {
	if c == nil || c.ttl <= 0 {
		return
	}
	cp := make(map[uint]string, len(roles))
	for k, v := range roles {
		cp[k] = v
	}
	c.cache.Store(userID, &cacheEntry{
		roles:     cp,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Invalidate 清除单个用户的缓存
func (c *RoleCache) Invalidate(userID uint) {
	if c == nil {
		return
	}
	c.cache.Delete(userID)
}

// Clear 清空缓存
func (c *RoleCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}
