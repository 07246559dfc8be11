package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials 邮箱或密码错误, 或用户已停用
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword 生成 bcrypt 哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 校验密码
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// authenticate 校验邮箱和密码, 停用用户视为凭证无效
func authenticate(ctx context.Context, users repository.UserRepository, email, password string) (*model.UserModel, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active || !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// PrincipalFromUser 用户转换为主体
func PrincipalFromUser(u *model.UserModel) *Principal {
	return &Principal{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin}
}
