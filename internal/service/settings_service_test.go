package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSettings(db *gorm.DB, cache *auth.RoleCache) service.SettingsService {
	recurrences := service.NewRecurrenceService(db, nil, nil)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	return service.NewSettingsService(db, recurrences, cache, audit, nil)
}

// TestSettingsService_RequiresAdmin 测试非管理员无法访问配置
func TestSettingsService_RequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newSettings(db, nil)
	user := &auth.Principal{ID: 1, Email: "ana@example.com"}

	_, err := svc.ListStages(ctx, user)
	assert.True(t, service.IsPermission(err))
	_, err = svc.CreateWorkspace(ctx, user, "Comercial")
	assert.True(t, service.IsPermission(err))
	_, err = svc.RunRecurrencesNow(ctx, user)
	assert.True(t, service.IsPermission(err))
	err = svc.RemoveMembership(ctx, nil, 1, 1)
	assert.True(t, service.IsPermission(err))
}

// TestSettingsService_Stages 测试阶段创建、切换和删除
func TestSettingsService_Stages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newSettings(db, nil)

	stage, err := svc.CreateStage(ctx, adminPrincipal, &service.CreateStageRequest{Name: " Fila ", SortOrder: 1})
	require.NoError(t, err)
	assert.Equal(t, "Fila", stage.Name)
	assert.True(t, stage.Active)

	_, err = svc.CreateStage(ctx, adminPrincipal, &service.CreateStageRequest{Name: "Fila"})
	assert.True(t, service.IsValidation(err), "duplicate name: %v", err)
	_, err = svc.CreateStage(ctx, adminPrincipal, &service.CreateStageRequest{Name: "  "})
	assert.True(t, service.IsValidation(err))

	toggled, err := svc.ToggleStage(ctx, adminPrincipal, stage.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)
	stored, err := repository.NewStageRepository(db).FindByID(ctx, stage.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	_, err = svc.ToggleStage(ctx, adminPrincipal, 9999)
	assert.True(t, service.IsNotFound(err))

	// 被任务引用时拒绝删除
	task := createTask(t, db, &model.TaskModel{Title: "x", StageID: stage.ID})
	err = svc.DeleteStage(ctx, adminPrincipal, stage.ID)
	assert.True(t, service.IsReferentialIntegrity(err))

	require.NoError(t, db.Delete(task).Error)
	require.NoError(t, svc.DeleteStage(ctx, adminPrincipal, stage.ID))
	err = svc.DeleteStage(ctx, adminPrincipal, stage.ID)
	assert.True(t, service.IsNotFound(err))

	logs, err := repository.NewAuditLogRepository(db).FindByActor(ctx, adminPrincipal.Actor())
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

// TestSettingsService_DeleteStage_ConcurrentTask 测试计数之后插入的任务仍然阻止删除
func TestSettingsService_DeleteStage_ConcurrentTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newSettings(db, nil)
	stage := createStage(t, db, "Fila", 1)

	// 在计数和删除之间插入引用该阶段的任务
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:insert_task", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "task_stages" {
			return
		}
		now := time.Now().UTC()
		_ = tx.Session(&gorm.Session{NewDB: true}).Create(&model.TaskModel{
			Title: "Concorrente", ClientID: "c", StageID: stage.ID, Priority: model.PriorityMedia, CreatedAt: now, UpdatedAt: now,
		}).Error
	}))

	err := svc.DeleteStage(ctx, adminPrincipal, stage.ID)
	require.Error(t, err)
	assert.True(t, service.IsReferentialIntegrity(err), "unexpected error: %v", err)

	_, err = repository.NewStageRepository(db).FindByID(ctx, stage.ID)
	require.NoError(t, err)
}

// TestSettingsService_Organization 测试工作区、团队和成员管理
func TestSettingsService_Organization(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cache := auth.NewRoleCache(time.Minute)
	svc := newSettings(db, cache)

	ws, err := svc.CreateWorkspace(ctx, adminPrincipal, "Comercial")
	require.NoError(t, err)
	_, err = svc.CreateWorkspace(ctx, adminPrincipal, "Comercial")
	assert.True(t, service.IsValidation(err))

	renamed, err := svc.RenameWorkspace(ctx, adminPrincipal, ws.ID, "Vendas BR")
	require.NoError(t, err)
	assert.Equal(t, "Vendas BR", renamed.Name)
	_, err = svc.RenameWorkspace(ctx, adminPrincipal, 9999, "x")
	assert.True(t, service.IsNotFound(err))

	team, err := svc.CreateTeam(ctx, adminPrincipal, ws.ID, "Inside")
	require.NoError(t, err)
	_, err = svc.CreateTeam(ctx, adminPrincipal, 9999, "Inside")
	assert.True(t, service.IsNotFound(err))

	p := createMember(t, db, "ana@example.com", "Ana", 0, "")
	perms := service.NewPermissionResolver(repository.NewMembershipRepository(db), cache, nil)

	// 预热缓存
	scope, err := perms.AllowedTeamIDs(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, scope.IDs())

	m, err := svc.AddMembership(ctx, adminPrincipal, &service.AddMembershipRequest{TeamID: team.ID, UserID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, model.RoleColaborador, m.Role)

	scope, err = perms.AllowedTeamIDs(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []uint{team.ID}, scope.IDs())

	// 重复添加返回已有记录
	again, err := svc.AddMembership(ctx, adminPrincipal, &service.AddMembershipRequest{TeamID: team.ID, UserID: p.ID, Role: model.RoleGerente})
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, model.RoleColaborador, again.Role)

	_, err = svc.AddMembership(ctx, adminPrincipal, &service.AddMembershipRequest{TeamID: team.ID, UserID: p.ID, Role: "dono"})
	assert.True(t, service.IsValidation(err))
	_, err = svc.AddMembership(ctx, adminPrincipal, &service.AddMembershipRequest{TeamID: team.ID, UserID: 9999})
	assert.True(t, service.IsNotFound(err))

	members, err := svc.ListMemberships(ctx, adminPrincipal, team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, svc.RemoveMembership(ctx, adminPrincipal, team.ID, p.ID))
	scope, err = perms.AllowedTeamIDs(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, scope.IDs())

	err = svc.RemoveMembership(ctx, adminPrincipal, team.ID, p.ID)
	assert.True(t, service.IsNotFound(err))

	toggled, err := svc.ToggleTeam(ctx, adminPrincipal, team.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)
	teams, err := svc.ListTeams(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.Len(t, teams, 1)
}

// TestSettingsService_Rules 测试自动化和循环规则的默认值
func TestSettingsService_Rules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newSettings(db, nil)
	stage := createStage(t, db, "Fila", 1)
	task := createTask(t, db, &model.TaskModel{Title: "Relatório", StageID: stage.ID})

	rule, err := svc.CreateAutomation(ctx, adminPrincipal, &service.CreateAutomationRequest{Name: "Aviso", TriggerToStage: uintPtr(stage.ID)})
	require.NoError(t, err)
	assert.Equal(t, model.ActionComment, rule.Action)
	assert.True(t, rule.Active)
	_, err = svc.CreateAutomation(ctx, adminPrincipal, &service.CreateAutomationRequest{Name: "Aviso", Action: "email"})
	assert.True(t, service.IsValidation(err))

	toggled, err := svc.ToggleAutomation(ctx, adminPrincipal, rule.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	before := time.Now().UTC()
	rec, err := svc.CreateRecurrence(ctx, adminPrincipal, &service.CreateRecurrenceRequest{Name: "Semanal", SourceTaskID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyWeekly, rec.Frequency)
	assert.Equal(t, 1, rec.Interval)
	require.NotNil(t, rec.NextRunAt)
	assert.False(t, rec.NextRunAt.Before(before.AddDate(0, 0, 7)))

	_, err = svc.CreateRecurrence(ctx, adminPrincipal, &service.CreateRecurrenceRequest{Name: "Órfã", SourceTaskID: 9999})
	assert.True(t, service.IsNotFound(err))
	_, err = svc.CreateRecurrence(ctx, adminPrincipal, &service.CreateRecurrenceRequest{Name: "Anual", SourceTaskID: task.ID, Frequency: "yearly"})
	assert.True(t, service.IsValidation(err))

	// 下次执行时间未到, 立即执行不会生成任务
	result, err := svc.RunRecurrencesNow(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.Empty(t, result.Created)

	recs, err := svc.ListRecurrences(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
