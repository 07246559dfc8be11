package repository

import (
	"context"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// CommentRepository 评论仓储接口
type CommentRepository interface {
	Create(ctx context.Context, c *model.CommentModel) error
	FindByTask(ctx context.Context, taskID uint) ([]*model.CommentModel, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository 创建评论仓储
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, c *model.CommentModel) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// FindByTask 按创建时间正序
func (r *commentRepository) FindByTask(ctx context.Context, taskID uint) ([]*model.CommentModel, error) {
	var list []*model.CommentModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("created_at ASC").Order("id ASC").Find(&list).Error
	return list, err
}

// AttachmentRepository 附件仓储接口
type AttachmentRepository interface {
	Create(ctx context.Context, a *model.AttachmentModel) error
	FindByTask(ctx context.Context, taskID uint) ([]*model.AttachmentModel, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建附件仓储
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, a *model.AttachmentModel) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// FindByTask 按创建时间倒序
func (r *attachmentRepository) FindByTask(ctx context.Context, taskID uint) ([]*model.AttachmentModel, error) {
	var list []*model.AttachmentModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("created_at DESC").Order("id DESC").Find(&list).Error
	return list, err
}
