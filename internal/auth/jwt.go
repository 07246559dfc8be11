package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/crm-gin/internal/repository"
)

// Claims JWT 声明
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// JWTManager HS256 共享密钥令牌认证, 无服务端状态
type JWTManager struct {
	users  repository.UserRepository
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager 创建 JWT 认证
func NewJWTManager(users repository.UserRepository, secret, issuer string, days int) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if days <= 0 {
		days = DefaultSessionDays
	}
	return &JWTManager{
		users:  users,
		secret: []byte(secret),
		issuer: issuer,
		ttl:    time.Duration(days) * 24 * time.Hour,
		now:    time.Now,
	}, nil
}

// Issue 为主体签发令牌
func (m *JWTManager) Issue(p *Principal) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		Email: p.Email,
		Name:  p.Name,
		Admin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(p.ID), 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, exp, nil
}

// ValidateToken 校验签名、签发者和过期时间
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (m *JWTManager) Resolve(_ context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := m.ValidateToken(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return &Principal{ID: uint(id), Name: claims.Name, Email: claims.Email, IsAdmin: claims.Admin}, nil
}

func (m *JWTManager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := authenticate(ctx, m.users, email, password)
	if err != nil {
		return nil, err
	}
	p := PrincipalFromUser(u)
	token, exp, err := m.Issue(p)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, Principal: p}, nil
}

// Logout 令牌无服务端状态, 由客户端丢弃
func (m *JWTManager) Logout(context.Context, string) error {
	return nil
}
