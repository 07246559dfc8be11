package repository

import (
	"context"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.NotificationModel) error
	// CreateIfAbsent 依赖唯一索引去重, 已存在时返回 false
	CreateIfAbsent(ctx context.Context, n *model.NotificationModel) (bool, error)
	FindVisible(ctx context.Context, scope *model.TeamSet, limit int) ([]*model.NotificationModel, error)
	FindByTask(ctx context.Context, taskID uint) ([]*model.NotificationModel, error)
	CountUnread(ctx context.Context, scope *model.TeamSet) (int64, error)
	MarkRead(ctx context.Context, id uint, scope *model.TeamSet) error
	MarkAllRead(ctx context.Context, scope *model.TeamSet) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.NotificationModel) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) CreateIfAbsent(ctx context.Context, n *model.NotificationModel) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindVisible 可见团队及无团队的通知, 按创建时间倒序
func (r *notificationRepository) FindVisible(ctx context.Context, scope *model.TeamSet, limit int) ([]*model.NotificationModel, error) {
	var list []*model.NotificationModel
	q := applyTeamScope(r.db.WithContext(ctx).Model(&model.NotificationModel{}), "team_id", scope, true)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("created_at DESC").Order("id DESC").Find(&list).Error
	return list, err
}

func (r *notificationRepository) FindByTask(ctx context.Context, taskID uint) ([]*model.NotificationModel, error) {
	var list []*model.NotificationModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, scope *model.TeamSet) (int64, error) {
	var n int64
	q := applyTeamScope(r.db.WithContext(ctx).Model(&model.NotificationModel{}), "team_id", scope, true)
	err := q.Where("read = ?", false).Count(&n).Error
	return n, err
}

// MarkRead 标记单条通知已读, 不可见或不存在时返回 ErrNotFound
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, scope *model.TeamSet) error {
	q := applyTeamScope(r.db.WithContext(ctx).Model(&model.NotificationModel{}), "team_id", scope, true)
	res := q.Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, scope *model.TeamSet) (int64, error) {
	q := applyTeamScope(r.db.WithContext(ctx).Model(&model.NotificationModel{}), "team_id", scope, true)
	res := q.Where("read = ?", false).Update("read", true)
	return res.RowsAffected, res.Error
}
