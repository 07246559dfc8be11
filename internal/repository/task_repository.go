package repository

import (
	"context"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository 任务仓储接口
type TaskRepository interface {
	Create(ctx context.Context, task *model.TaskModel) error
	FindByID(ctx context.Context, id uint) (*model.TaskModel, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.TaskModel, error)
	FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, error)
	// FindSiblings 同阶段任务,按 (position, id) 排序
	FindSiblings(ctx context.Context, stageID uint, forUpdate bool) ([]*model.TaskModel, error)
	MaxPosition(ctx context.Context, stageID uint) (int, error)
	UpdateStage(ctx context.Context, id uint, stageID uint, updatedAt time.Time) error
	UpdatePosition(ctx context.Context, id uint, position int) error
	FindCreatedSince(ctx context.Context, teamIDs []uint, since time.Time) ([]*model.TaskModel, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	Query       string
	StageID     *uint
	Priority    string
	WorkspaceID *uint
	TeamID      *uint
	Teams       *model.TeamSet // 可见团队, nil 表示不限
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *model.TaskModel) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id uint) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// FindByIDForUpdate 在事务内加行锁读取任务
func (r *taskRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.locking(r.db.WithContext(ctx)).First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// FindByFilter 按 stage_id, position, created_at DESC 排序
func (r *taskRepository) FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	q := r.db.WithContext(ctx).Model(&model.TaskModel{})

	if filter != nil {
		if s := strings.TrimSpace(filter.Query); s != "" {
			q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
		}
		if filter.StageID != nil {
			q = q.Where("stage_id = ?", *filter.StageID)
		}
		if filter.Priority != "" {
			q = q.Where("priority = ?", filter.Priority)
		}
		if filter.WorkspaceID != nil {
			q = q.Where("workspace_id = ?", *filter.WorkspaceID)
		}
		if filter.TeamID != nil {
			q = q.Where("team_id = ?", *filter.TeamID)
		}
		q = applyTeamScope(q, "team_id", filter.Teams, false)
	}

	err := q.Order("stage_id ASC").Order("position ASC").Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) FindSiblings(ctx context.Context, stageID uint, forUpdate bool) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	q := r.db.WithContext(ctx).Where("stage_id = ?", stageID)
	if forUpdate {
		q = r.locking(q)
	}
	err := q.Order("position ASC").Order("id ASC").Find(&tasks).Error
	return tasks, err
}

// MaxPosition 阶段内最大 position, 无任务时返回 0
func (r *taskRepository) MaxPosition(ctx context.Context, stageID uint) (int, error) {
	var maxPos *int
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("stage_id = ?", stageID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, err
	}
	if maxPos == nil {
		return 0, nil
	}
	return *maxPos, nil
}

func (r *taskRepository) UpdateStage(ctx context.Context, id uint, stageID uint, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.TaskModel{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"stage_id": stageID, "updated_at": updatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) UpdatePosition(ctx context.Context, id uint, position int) error {
	return r.db.WithContext(ctx).Model(&model.TaskModel{}).Where("id = ?", id).
		UpdateColumn("position", position).Error
}

// FindCreatedSince 指定团队在时间窗口内创建的任务
func (r *taskRepository) FindCreatedSince(ctx context.Context, teamIDs []uint, since time.Time) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	if len(teamIDs) == 0 {
		return tasks, nil
	}
	err := r.db.WithContext(ctx).
		Where("team_id IN ? AND created_at >= ?", teamIDs, since).
		Find(&tasks).Error
	return tasks, err
}

// locking 仅 PostgreSQL 支持 SELECT ... FOR UPDATE, SQLite 本身串行写
func (r *taskRepository) locking(q *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}
