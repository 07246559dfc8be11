package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
)

// DefaultSessionDays 默认会话有效期
const DefaultSessionDays = 14

// LoginResult 登录结果
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Principal *Principal `json:"principal"`
}

// Authenticator 登录与登出
type Authenticator interface {
	PrincipalResolver
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, credential string) error
}

// SessionManager 基于数据库会话表的认证
type SessionManager struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager 创建会话认证, days <= 0 时使用 14 天
func NewSessionManager(users repository.UserRepository, sessions repository.SessionRepository, days int) *SessionManager {
	if days <= 0 {
		days = DefaultSessionDays
	}
	return &SessionManager{
		users:    users,
		sessions: sessions,
		ttl:      time.Duration(days) * 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSessionToken 生成 64 位十六进制令牌
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := authenticate(ctx, m.users, email, password)
	if err != nil {
		return nil, err
	}
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &model.SessionModel{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: s.ExpiresAt, Principal: PrincipalFromUser(u)}, nil
}

func (m *SessionManager) Resolve(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}
	s, err := m.sessions.FindValid(ctx, credential, m.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	u, err := m.users.FindByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !u.Active {
		return nil, ErrUnauthenticated
	}
	return PrincipalFromUser(u), nil
}

func (m *SessionManager) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	return m.sessions.Delete(ctx, credential)
}

// PurgeExpired 清理过期会话
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpired(ctx, m.now())
}
