package repository

import (
	"context"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	Create(ctx context.Context, u *model.UserModel) error
	FindByID(ctx context.Context, id uint) (*model.UserModel, error)
	FindByEmail(ctx context.Context, email string) (*model.UserModel, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *model.UserModel) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.UserModel, error) {
	var u model.UserModel
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.UserModel, error) {
	var u model.UserModel
	email = strings.ToLower(strings.TrimSpace(email))
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// SessionRepository 会话仓储接口
type SessionRepository interface {
	Create(ctx context.Context, s *model.SessionModel) error
	FindValid(ctx context.Context, token string, now time.Time) (*model.SessionModel, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *model.SessionModel) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepository) FindValid(ctx context.Context, token string, now time.Time) (*model.SessionModel, error) {
	var s model.SessionModel
	err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, now).First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *sessionRepository) Delete(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&model.SessionModel{}).Error
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.SessionModel{})
	return res.RowsAffected, res.Error
}

// ClientRepository 客户目录仓储接口
type ClientRepository interface {
	FindNames(ctx context.Context, ids []string) (map[string]string, error)
}

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository 创建客户目录仓储
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

// FindNames 批量查询客户名称
func (r *clientRepository) FindNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.ClientModel
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.ID] = c.Name
	}
	return out, nil
}
