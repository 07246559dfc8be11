package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatisticsService 测试按阶段、优先级和日期统计, 结果限定在可见团队
func TestStatisticsService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := createWorkspace(t, db, "Comercial")
	sales := createTeam(t, db, ws.ID, "Vendas")
	support := createTeam(t, db, ws.ID, "Suporte")
	queue := createStage(t, db, "Fila", 1)
	done := createStage(t, db, "Concluído", 2)
	p := createMember(t, db, "ana@example.com", "Ana", sales.ID, model.RoleGerente)

	day1 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	createTask(t, db, &model.TaskModel{Title: "a", StageID: queue.ID, TeamID: uintPtr(sales.ID), Priority: model.PriorityAlta, CreatedAt: day1, UpdatedAt: day1})
	createTask(t, db, &model.TaskModel{Title: "b", StageID: queue.ID, TeamID: uintPtr(sales.ID), CreatedAt: day2, UpdatedAt: day2})
	createTask(t, db, &model.TaskModel{Title: "c", StageID: done.ID, TeamID: uintPtr(sales.ID), CreatedAt: day2, UpdatedAt: day2})
	createTask(t, db, &model.TaskModel{Title: "d", StageID: done.ID, TeamID: uintPtr(support.ID), CreatedAt: day2, UpdatedAt: day2})

	svc := service.NewStatisticsService(db, newPermissions(db))

	byStage, err := svc.GetTaskStatisticsByStage(ctx, p)
	require.NoError(t, err)
	require.Len(t, byStage, 2)
	assert.Equal(t, "Fila", byStage[0].StageName)
	assert.Equal(t, int64(2), byStage[0].Count)
	assert.Equal(t, int64(1), byStage[1].Count)

	byPriority, err := svc.GetTaskStatisticsByPriority(ctx, p)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, row := range byPriority {
		counts[row.Priority] = row.Count
	}
	assert.Equal(t, map[string]int64{model.PriorityAlta: 1, model.PriorityMedia: 2}, counts)

	byDate, err := svc.GetTaskStatisticsByTime(ctx, adminPrincipal)
	require.NoError(t, err)
	require.Len(t, byDate, 2)
	assert.Equal(t, "2025-05-02", byDate[0].Date)
	assert.Equal(t, int64(3), byDate[0].Count)

	// 没有团队的用户看不到任何任务
	nobody := createMember(t, db, "sem@example.com", "Sem", 0, "")
	byStage, err = svc.GetTaskStatisticsByStage(ctx, nobody)
	require.NoError(t, err)
	assert.Empty(t, byStage)
}

// TestAuditLogService_RecordAction 测试审计日志记录请求元数据
func TestAuditLogService_RecordAction(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAuditLogRepository(db)
	svc := service.NewAuditLogService(repo)

	ctx := service.WithRequestMeta(context.Background(), "req-1", "10.0.0.1")
	assert.Equal(t, "req-1", service.GetRequestID(ctx))
	assert.Equal(t, "10.0.0.1", service.GetClientIP(ctx))
	assert.Empty(t, service.GetRequestID(context.Background()))

	require.NoError(t, svc.RecordAction(ctx, "admin@example.com", "move", "task", "42", map[string]uint{"to_stage": 2}))

	logs, err := repo.FindByResource(context.Background(), "task", "42")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin@example.com", logs[0].Actor)
	assert.Equal(t, "req-1", logs[0].RequestID)
	assert.Equal(t, "10.0.0.1", logs[0].IP)
	assert.JSONEq(t, `{"to_stage":2}`, logs[0].Details)
	assert.NotEmpty(t, logs[0].ID)
}
