package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, email, password string, active bool) *model.UserModel {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &model.UserModel{Email: email, Name: "Ana Souza", PasswordHash: hash, Active: active, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(u).Error)
	return u
}

// TestSessionManager_LoginResolveLogout 测试会话登录、解析和登出
func TestSessionManager_LoginResolveLogout(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "ana@example.com", "s3nha", true)
	m := auth.NewSessionManager(repository.NewUserRepository(db), repository.NewSessionRepository(db), 0)

	result, err := m.Login(ctx, "  ANA@example.com ", "s3nha")
	require.NoError(t, err)
	assert.Len(t, result.Token, 64)
	assert.Equal(t, u.ID, result.Principal.ID)

	p, err := m.Resolve(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "Ana Souza", p.DisplayName())

	require.NoError(t, m.Logout(ctx, result.Token))
	_, err = m.Resolve(ctx, result.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

// TestSessionManager_Rejects 测试错误密码、停用用户和过期会话
func TestSessionManager_Rejects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "ana@example.com", "s3nha", true)
	createUser(t, db, "off@example.com", "s3nha", false)
	m := auth.NewSessionManager(repository.NewUserRepository(db), repository.NewSessionRepository(db), 1)

	_, err := m.Login(ctx, "ana@example.com", "errada")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = m.Login(ctx, "ninguem@example.com", "s3nha")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = m.Login(ctx, "off@example.com", "s3nha")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = m.Resolve(ctx, "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	result, err := m.Login(ctx, "ana@example.com", "s3nha")
	require.NoError(t, err)

	// 用户停用后会话失效
	require.NoError(t, db.Model(u).Update("active", false).Error)
	_, err = m.Resolve(ctx, result.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	require.NoError(t, db.Model(u).Update("active", true).Error)

	later := time.Now().UTC().Add(48 * time.Hour)
	auth.SetSessionClock(m, func() time.Time { return later })
	_, err = m.Resolve(ctx, result.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	purged, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

// TestJWTManager_IssueAndResolve 测试令牌签发和校验
func TestJWTManager_IssueAndResolve(t *testing.T) {
	_, err := auth.NewJWTManager(nil, "", "crm-gin", 1)
	require.Error(t, err)

	m, err := auth.NewJWTManager(nil, "segredo", "crm-gin", 1)
	require.NoError(t, err)

	token, exp, err := m.Issue(&auth.Principal{ID: 7, Name: "Ana", Email: "ana@example.com", IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	p, err := m.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), p.ID)
	assert.True(t, p.IsAdmin)

	other, err := auth.NewJWTManager(nil, "outro", "crm-gin", 1)
	require.NoError(t, err)
	_, err = other.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	wrongIssuer, err := auth.NewJWTManager(nil, "segredo", "outro", 1)
	require.NoError(t, err)
	_, err = wrongIssuer.ValidateToken(token)
	assert.Error(t, err)

	auth.SetJWTClock(m, func() time.Time { return time.Now().Add(72 * time.Hour) })
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	assert.NoError(t, m.Logout(context.Background(), token))
}

// TestJWTManager_Login 测试 JWT 模式下的密码登录
func TestJWTManager_Login(t *testing.T) {
	db := setupTestDB(t)
	createUser(t, db, "ana@example.com", "s3nha", true)
	m, err := auth.NewJWTManager(repository.NewUserRepository(db), "segredo", "", 0)
	require.NoError(t, err)

	result, err := m.Login(context.Background(), "ana@example.com", "s3nha")
	require.NoError(t, err)
	p, err := m.Resolve(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Principal.ID, p.ID)

	_, err = m.Login(context.Background(), "ana@example.com", "x")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

type staticResolver struct {
	p   *auth.Principal
	err error
}

func (r staticResolver) Resolve(_ context.Context, credential string) (*auth.Principal, error) {
	if r.err != nil {
		return nil, r.err
	}
	if credential != "good" {
		return nil, auth.ErrUnauthenticated
	}
	return r.p, nil
}

// TestAuthMiddleware 测试凭证提取和主体写入
func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &auth.Principal{ID: 1, Email: "ana@example.com"}

	newRouter := func(resolver auth.PrincipalResolver) *gin.Engine {
		r := gin.New()
		r.GET("/me", auth.AuthMiddleware(resolver, ""), func(c *gin.Context) {
			got, ok := auth.GetPrincipal(c)
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{"email": got.Email})
		})
		return r
	}

	tests := []struct {
		name     string
		resolver auth.PrincipalResolver
		prepare  func(req *http.Request)
		status   int
	}{
		{"missing", staticResolver{p: p}, func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", staticResolver{p: p}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"raw header", staticResolver{p: p}, func(r *http.Request) { r.Header.Set("Authorization", "good") }, http.StatusOK},
		{"cookie", staticResolver{p: p}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: "good"})
		}, http.StatusOK},
		{"invalid", staticResolver{p: p}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized},
		{"resolver error", staticResolver{err: errors.New("db down")}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			newRouter(tt.resolver).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

// TestRoleCache 测试缓存副本和过期
func TestRoleCache(t *testing.T) {
	c := auth.NewRoleCache(time.Minute)
	c.Set(1, map[uint]string{10: model.RoleGerente})

	roles, ok := c.Get(1)
	require.True(t, ok)
	roles[11] = model.RoleColaborador

	again, ok := c.Get(1)
	require.True(t, ok)
	assert.Len(t, again, 1)

	auth.SetRoleCacheClock(c, func() time.Time { return time.Now().Add(2 * time.Minute) })
	_, ok = c.Get(1)
	assert.False(t, ok)

	disabled := auth.NewRoleCache(0)
	disabled.Set(1, map[uint]string{10: model.RoleGerente})
	_, ok = disabled.Get(1)
	assert.False(t, ok)

	var nilCache *auth.RoleCache
	nilCache.Invalidate(1)
	_, ok = nilCache.Get(1)
	assert.False(t, ok)
}
