package repository

import (
	"context"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// StageRepository 阶段仓储接口
type StageRepository interface {
	Create(ctx context.Context, stage *model.StageModel) error
	FindByID(ctx context.Context, id uint) (*model.StageModel, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.StageModel, error)
	FindByName(ctx context.Context, name string) (*model.StageModel, error)
	FindAll(ctx context.Context, activeOnly bool) ([]*model.StageModel, error)
	SetActive(ctx context.Context, id uint, active bool) error
	CountTasks(ctx context.Context, id uint) (int64, error)
	Delete(ctx context.Context, id uint) error
}

type stageRepository struct {
	db *gorm.DB
}

// NewStageRepository 创建阶段仓储
func NewStageRepository(db *gorm.DB) StageRepository {
	return &stageRepository{db: db}
}

func (r *stageRepository) Create(ctx context.Context, stage *model.StageModel) error {
	return r.db.WithContext(ctx).Create(stage).Error
}

func (r *stageRepository) FindByID(ctx context.Context, id uint) (*model.StageModel, error) {
	var stage model.StageModel
	if err := r.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &stage, nil
}

// FindByIDs 批量加载阶段
func (r *stageRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]*model.StageModel, error) {
	out := make(map[uint]*model.StageModel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var stages []*model.StageModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&stages).Error; err != nil {
		return nil, err
	}
	for _, s := range stages {
		out[s.ID] = s
	}
	return out, nil
}

func (r *stageRepository) FindByName(ctx context.Context, name string) (*model.StageModel, error) {
	var stage model.StageModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&stage).Error; err != nil {
		return nil, notFound(err)
	}
	return &stage, nil
}

// FindAll 按 sort_order, name 排序
func (r *stageRepository) FindAll(ctx context.Context, activeOnly bool) ([]*model.StageModel, error) {
	var stages []*model.StageModel
	q := r.db.WithContext(ctx).Model(&model.StageModel{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Order("sort_order ASC").Order("name ASC").Find(&stages).Error
	return stages, err
}

func (r *stageRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&model.StageModel{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *stageRepository) CountTasks(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).Where("stage_id = ?", id).Count(&n).Error
	return n, err
}

func (r *stageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.StageModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
