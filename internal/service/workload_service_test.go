package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorkloadService_ComputeWorkload 测试按团队统计各类别和百分比
func TestWorkloadService_ComputeWorkload(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC)

	ws := createWorkspace(t, db, "Comercial")
	sales := createTeam(t, db, ws.ID, "Vendas")
	support := createTeam(t, db, ws.ID, "Suporte")
	queue := createStage(t, db, "Fila", 1)
	doing := createStage(t, db, "Em produção", 2)
	done := createStage(t, db, "Concluído", 3)

	recent := now.AddDate(0, 0, -2)
	add := func(teamID, stageID uint, due *time.Time, createdAt time.Time) {
		createTask(t, db, &model.TaskModel{
			Title: "t", StageID: stageID, TeamID: uintPtr(teamID), DueDate: due,
			CreatedAt: createdAt, UpdatedAt: createdAt,
		})
	}
	add(sales.ID, queue.ID, datePtr(2025, 5, 1), recent)
	add(sales.ID, doing.ID, datePtr(2025, 5, 3), recent)
	add(sales.ID, done.ID, datePtr(2025, 4, 20), recent)
	// 超出统计窗口
	add(sales.ID, queue.ID, nil, now.AddDate(0, 0, -40))
	add(support.ID, queue.ID, nil, recent)

	svc := service.NewWorkloadService(db, newPermissions(db))
	service.SetWorkloadClock(svc, fixedClock(now))

	rows, err := svc.ComputeWorkload(ctx, adminPrincipal, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// 同一工作区内按团队名称排序
	assert.Equal(t, "Suporte", rows[0].TeamName)
	assert.Equal(t, 1, rows[0].Total)
	assert.Equal(t, 1, rows[0].Queued)
	assert.Equal(t, 33, rows[0].Pct)

	vendas := rows[1]
	assert.Equal(t, "Comercial", vendas.WorkspaceName)
	assert.Equal(t, 3, vendas.Total)
	assert.Equal(t, 1, vendas.Queued)
	assert.Equal(t, 1, vendas.InProgress)
	assert.Equal(t, 1, vendas.Done)
	assert.Equal(t, 1, vendas.Overdue)
	assert.Equal(t, 100, vendas.Pct)

	// 更长的窗口包含旧任务
	rows, err = svc.ComputeWorkload(ctx, adminPrincipal, 60)
	require.NoError(t, err)
	assert.Equal(t, 4, rows[1].Total)
}

// TestWorkloadService_Scope 测试成员只能看到自己团队, 空团队百分比为 0
func TestWorkloadService_Scope(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := createWorkspace(t, db, "Comercial")
	sales := createTeam(t, db, ws.ID, "Vendas")
	createTeam(t, db, ws.ID, "Suporte")
	p := createMember(t, db, "ana@example.com", "Ana", sales.ID, model.RoleColaborador)

	svc := service.NewWorkloadService(db, newPermissions(db))
	rows, err := svc.ComputeWorkload(ctx, p, service.DefaultWorkloadWindowDays)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, sales.ID, rows[0].TeamID)
	assert.Equal(t, 0, rows[0].Total)
	assert.Equal(t, 0, rows[0].Pct)

	outsider := createMember(t, db, "sem@example.com", "Sem Equipe", 0, "")
	rows, err = svc.ComputeWorkload(ctx, outsider, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
