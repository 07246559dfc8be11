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

// TestMessageTemplate_Render 测试占位符替换
func TestMessageTemplate_Render(t *testing.T) {
	tpl := service.ParseMessageTemplate("Task {{task_title}} moved from {{from_stage}} to {{to_stage}}")
	got := tpl.Render(service.TemplateVars{TaskTitle: "Invoice #9", FromStage: "3", ToStage: "7"})
	assert.Equal(t, "Task Invoice #9 moved from 3 to 7", got)

	// 未知占位符原样保留
	tpl = service.ParseMessageTemplate("{{unknown}} {{task_title}}")
	assert.Equal(t, "{{unknown}} X", tpl.Render(service.TemplateVars{TaskTitle: "X"}))

	assert.True(t, service.ParseMessageTemplate("   ").Empty())
}

// TestBuildAutomationMessage 测试默认消息和前缀
func TestBuildAutomationMessage(t *testing.T) {
	task := &model.TaskModel{Title: "Invoice #9"}

	rule := &model.AutomationRuleModel{Name: "Aviso", Action: model.ActionComment}
	assert.Equal(t, "[AUTO] Automation 'Aviso' executed on stage change", service.BuildAutomationMessage(rule, task, 3, 7))

	rule = &model.AutomationRuleModel{Name: "Aviso", Action: model.ActionNotify, MessageTemplate: "{{task_title}} -> {{to_stage}}"}
	assert.Equal(t, "[AUTO-NOTIFY] Invoice #9 -> 7", service.BuildAutomationMessage(rule, task, 3, 7))
}

// TestAutomationService_RunStageAutomations 测试只有匹配的规则会写入评论
func TestAutomationService_RunStageAutomations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ws := createWorkspace(t, db, "Comercial")
	team := createTeam(t, db, ws.ID, "Vendas")
	other := createTeam(t, db, ws.ID, "Outro")
	s1 := createStage(t, db, "Fila", 1)
	s2 := createStage(t, db, "Produção", 2)
	s3 := createStage(t, db, "Concluído", 3)

	task := createTask(t, db, &model.TaskModel{Title: "Invoice #9", StageID: s1.ID, WorkspaceID: uintPtr(ws.ID), TeamID: uintPtr(team.ID)})

	now := time.Now().UTC()
	rules := []*model.AutomationRuleModel{
		// 任意来源进入 s2
		{Name: "into s2", TriggerToStage: uintPtr(s2.ID), Action: model.ActionComment, Active: true, CreatedAt: now},
		// s1 -> s2 且限定团队
		{Name: "team rule", TeamID: uintPtr(team.ID), TriggerFromStage: uintPtr(s1.ID), TriggerToStage: uintPtr(s2.ID), Action: model.ActionNotify, Active: true, CreatedAt: now},
		// 其他团队
		{Name: "other team", TeamID: uintPtr(other.ID), Action: model.ActionComment, Active: true, CreatedAt: now},
		// 目标阶段不匹配
		{Name: "into s3", TriggerToStage: uintPtr(s3.ID), Action: model.ActionComment, Active: true, CreatedAt: now},
		// 已停用
		{Name: "inactive", Action: model.ActionComment, Active: false, CreatedAt: now},
	}
	for _, r := range rules {
		require.NoError(t, db.Create(r).Error)
	}

	engine := service.NewAutomationService(db, nil)
	fired, err := engine.RunStageAutomations(ctx, task, s1.ID, s2.ID, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	comments, err := repository.NewCommentRepository(db).FindByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	texts := []string{comments[0].Comment, comments[1].Comment}
	assert.Contains(t, texts, "[AUTO] Automation 'into s2' executed on stage change")
	assert.Contains(t, texts, "[AUTO-NOTIFY] Automation 'team rule' executed on stage change")
	assert.Equal(t, "ana@example.com", comments[0].Author)

	// 从 s3 进入 s2 时只有无来源限制的规则触发
	fired, err = engine.RunStageAutomations(ctx, task, s3.ID, s2.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}
