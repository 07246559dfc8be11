package service

import (
	"context"
	"fmt"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口, 结果限定在可见团队内
type StatisticsService interface {
	GetTaskStatisticsByStage(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByStage, error)
	GetTaskStatisticsByPriority(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByPriority, error)
	GetTaskStatisticsByTime(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByTime, error)
}

// TaskStatisticsByStage 按阶段统计
type TaskStatisticsByStage struct {
	StageID   uint   `json:"stage_id"`
	StageName string `json:"stage_name"`
	Count     int64  `json:"count"`
}

// TaskStatisticsByPriority 按优先级统计
type TaskStatisticsByPriority struct {
	Priority string `json:"priority"`
	Count    int64  `json:"count"`
}

// TaskStatisticsByTime 按创建日期统计
type TaskStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db          *gorm.DB
	permissions PermissionResolver
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB, permissions PermissionResolver) StatisticsService {
	return &statisticsService{db: db, permissions: permissions}
}

// scoped 返回按可见团队过滤的任务查询
func (s *statisticsService) scoped(ctx context.Context, p *auth.Principal) (*gorm.DB, error) {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&model.TaskModel{})
	if !scope.Unrestricted() {
		ids := scope.IDs()
		if len(ids) == 0 {
			return q.Where("1 = 0"), nil
		}
		q = q.Where("tasks.team_id IN ?", ids)
	}
	return q, nil
}

// GetTaskStatisticsByStage 按阶段统计任务
func (s *statisticsService) GetTaskStatisticsByStage(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByStage, error) {
	q, err := s.scoped(ctx, p)
	if err != nil {
		return nil, err
	}

	var stats []*TaskStatisticsByStage
	err = q.Select("tasks.stage_id AS stage_id, task_stages.name AS stage_name, COUNT(*) AS count").
		Joins("JOIN task_stages ON task_stages.id = tasks.stage_id").
		Group("tasks.stage_id, task_stages.name, task_stages.sort_order").
		Order("task_stages.sort_order ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by stage: %w", err)
	}
	return stats, nil
}

// GetTaskStatisticsByPriority 按优先级统计任务
func (s *statisticsService) GetTaskStatisticsByPriority(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByPriority, error) {
	q, err := s.scoped(ctx, p)
	if err != nil {
		return nil, err
	}

	var stats []*TaskStatisticsByPriority
	err = q.Select("priority, COUNT(*) AS count").
		Group("priority").
		Order("priority ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by priority: %w", err)
	}
	return stats, nil
}

// GetTaskStatisticsByTime 按创建日期统计任务
func (s *statisticsService) GetTaskStatisticsByTime(ctx context.Context, p *auth.Principal) ([]*TaskStatisticsByTime, error) {
	q, err := s.scoped(ctx, p)
	if err != nil {
		return nil, err
	}

	var stats []*TaskStatisticsByTime
	err = q.Select("DATE(created_at) AS date, COUNT(*) AS count").
		Group("DATE(created_at)").
		Order("date DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by time: %w", err)
	}
	return stats, nil
}
