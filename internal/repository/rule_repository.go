package repository

import (
	"context"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// AutomationRuleRepository 自动化规则仓储接口
type AutomationRuleRepository interface {
	Create(ctx context.Context, rule *model.AutomationRuleModel) error
	FindByID(ctx context.Context, id uint) (*model.AutomationRuleModel, error)
	FindAll(ctx context.Context) ([]*model.AutomationRuleModel, error)
	FindActive(ctx context.Context) ([]*model.AutomationRuleModel, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

type automationRuleRepository struct {
	db *gorm.DB
}

// NewAutomationRuleRepository 创建自动化规则仓储
func NewAutomationRuleRepository(db *gorm.DB) AutomationRuleRepository {
	return &automationRuleRepository{db: db}
}

func (r *automationRuleRepository) Create(ctx context.Context, rule *model.AutomationRuleModel) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *automationRuleRepository) FindByID(ctx context.Context, id uint) (*model.AutomationRuleModel, error) {
	var rule model.AutomationRuleModel
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rule, nil
}

func (r *automationRuleRepository) FindAll(ctx context.Context) ([]*model.AutomationRuleModel, error) {
	var list []*model.AutomationRuleModel
	err := r.db.WithContext(ctx).Order("id DESC").Find(&list).Error
	return list, err
}

func (r *automationRuleRepository) FindActive(ctx context.Context) ([]*model.AutomationRuleModel, error) {
	var list []*model.AutomationRuleModel
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *automationRuleRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return updateOne(r.db.WithContext(ctx).Model(&model.AutomationRuleModel{}), id, "active", active)
}

// RecurrenceRuleRepository 循环规则仓储接口
type RecurrenceRuleRepository interface {
	Create(ctx context.Context, rule *model.RecurrenceRuleModel) error
	FindByID(ctx context.Context, id uint) (*model.RecurrenceRuleModel, error)
	FindAll(ctx context.Context) ([]*model.RecurrenceRuleModel, error)
	// FindDue 启用且 next_run_at 为空或不晚于 now 的规则
	FindDue(ctx context.Context, now time.Time) ([]*model.RecurrenceRuleModel, error)
	// Advance 以 observedNext 做比较交换推进规则, 返回是否抢占成功
	Advance(ctx context.Context, id uint, observedNext *time.Time, lastRun, nextRun time.Time) (bool, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

type recurrenceRuleRepository struct {
	db *gorm.DB
}

// NewRecurrenceRuleRepository 创建循环规则仓储
func NewRecurrenceRuleRepository(db *gorm.DB) RecurrenceRuleRepository {
	return &recurrenceRuleRepository{db: db}
}

func (r *recurrenceRuleRepository) Create(ctx context.Context, rule *model.RecurrenceRuleModel) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *recurrenceRuleRepository) FindByID(ctx context.Context, id uint) (*model.RecurrenceRuleModel, error) {
	var rule model.RecurrenceRuleModel
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rule, nil
}

func (r *recurrenceRuleRepository) FindAll(ctx context.Context) ([]*model.RecurrenceRuleModel, error) {
	var list []*model.RecurrenceRuleModel
	err := r.db.WithContext(ctx).Order("id DESC").Find(&list).Error
	return list, err
}

func (r *recurrenceRuleRepository) FindDue(ctx context.Context, now time.Time) ([]*model.RecurrenceRuleModel, error) {
	var list []*model.RecurrenceRuleModel
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("next_run_at IS NULL OR next_run_at <= ?", now).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *recurrenceRuleRepository) Advance(ctx context.Context, id uint, observedNext *time.Time, lastRun, nextRun time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.RecurrenceRuleModel{}).
		Where("id = ? AND active = ?", id, true)
	if observedNext == nil {
		q = q.Where("next_run_at IS NULL")
	} else {
		q = q.Where("next_run_at = ?", *observedNext)
	}
	res := q.UpdateColumns(map[string]interface{}{
		"last_run_at": lastRun,
		"next_run_at": nextRun,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *recurrenceRuleRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return updateOne(r.db.WithContext(ctx).Model(&model.RecurrenceRuleModel{}), id, "active", active)
}
