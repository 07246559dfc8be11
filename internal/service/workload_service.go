package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"gorm.io/gorm"
)

// DefaultWorkloadWindowDays 默认统计窗口
const DefaultWorkloadWindowDays = 30

// WorkloadRow 单个团队的负载
type WorkloadRow struct {
	TeamID        uint   `json:"team_id"`
	TeamName      string `json:"team_name"`
	WorkspaceName string `json:"workspace_name"`
	Total         int    `json:"total"`
	Queued        int    `json:"queued"`
	InProgress    int    `json:"in_progress"`
	Done          int    `json:"done"`
	Overdue       int    `json:"overdue"`
	Pct           int    `json:"pct"` // 相对最忙团队的百分比
}

// WorkloadService 团队负载统计
type WorkloadService interface {
	ComputeWorkload(ctx context.Context, p *auth.Principal, windowDays int) ([]*WorkloadRow, error)
}

type workloadService struct {
	db          *gorm.DB
	permissions PermissionResolver
	now         func() time.Time
}

// NewWorkloadService 创建负载统计服务
func NewWorkloadService(db *gorm.DB, permissions PermissionResolver) WorkloadService {
	return &workloadService{db: db, permissions: permissions, now: utcNow}
}

func (s *workloadService) ComputeWorkload(ctx context.Context, p *auth.Principal, windowDays int) ([]*WorkloadRow, error) {
	if windowDays <= 0 {
		windowDays = DefaultWorkloadWindowDays
	}
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return nil, err
	}

	teams, err := repository.NewTeamRepository(s.db).FindAll(ctx, scope, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	rows := make([]*WorkloadRow, 0, len(teams))
	if len(teams) == 0 {
		return rows, nil
	}

	teamIDs := make([]uint, 0, len(teams))
	wsIDs := make([]uint, 0, len(teams))
	for _, t := range teams {
		teamIDs = append(teamIDs, t.ID)
		wsIDs = append(wsIDs, t.WorkspaceID)
	}
	workspaces, err := repository.NewWorkspaceRepository(s.db).FindByIDs(ctx, uniqueUints(wsIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}

	today := dateOf(s.now())
	since := today.AddDate(0, 0, -windowDays)
	tasks, err := repository.NewTaskRepository(s.db).FindCreatedSince(ctx, teamIDs, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	stageIDs := make([]uint, 0, len(tasks))
	for _, t := range tasks {
		stageIDs = append(stageIDs, t.StageID)
	}
	stages, err := repository.NewStageRepository(s.db).FindByIDs(ctx, uniqueUints(stageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}

	byTeam := make(map[uint]*WorkloadRow, len(teams))
	for _, t := range teams {
		row := &WorkloadRow{TeamID: t.ID, TeamName: t.Name}
		if ws, ok := workspaces[t.WorkspaceID]; ok {
			row.WorkspaceName = ws.Name
		}
		byTeam[t.ID] = row
		rows = append(rows, row)
	}

	for _, task := range tasks {
		if task.TeamID == nil {
			continue
		}
		row, ok := byTeam[*task.TeamID]
		if !ok {
			continue
		}
		stageName := ""
		if st, ok := stages[task.StageID]; ok {
			stageName = st.Name
		}
		row.Total++
		// 各类别独立判断, 同一任务在每个类别最多计一次
		done := model.StageNameIsDone(stageName)
		if done {
			row.Done++
		}
		if model.StageNameIsInProgress(stageName) {
			row.InProgress++
		}
		if model.StageNameIsQueued(stageName) {
			row.Queued++
		}
		// 逾期同样排除 concl 阶段,与通知的逾期判断一致,不只看 done
		if !done && task.DueDate != nil && dateOf(*task.DueDate).Before(today) {
			row.Overdue++
		}
	}

	maxTotal := 1
	for _, row := range rows {
		if row.Total > maxTotal {
			maxTotal = row.Total
		}
	}
	for _, row := range rows {
		row.Pct = row.Total * 100 / maxTotal
	}
	return rows, nil
}
