package model_test

import (
	"testing"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/stretchr/testify/assert"
)

func uintPtr(v uint) *uint { return &v }

// TestAutomationRule_Matches 测试作用域与阶段条件
func TestAutomationRule_Matches(t *testing.T) {
	task := &model.TaskModel{WorkspaceID: uintPtr(1), TeamID: uintPtr(10)}
	teamless := &model.TaskModel{}

	tests := []struct {
		name string
		rule model.AutomationRuleModel
		task *model.TaskModel
		from uint
		to   uint
		want bool
	}{
		{"global", model.AutomationRuleModel{Active: true}, task, 1, 2, true},
		{"inactive", model.AutomationRuleModel{Active: false}, task, 1, 2, false},
		{"workspace match", model.AutomationRuleModel{Active: true, WorkspaceID: uintPtr(1)}, task, 1, 2, true},
		{"workspace mismatch", model.AutomationRuleModel{Active: true, WorkspaceID: uintPtr(2)}, task, 1, 2, false},
		{"team on teamless task", model.AutomationRuleModel{Active: true, TeamID: uintPtr(10)}, teamless, 1, 2, false},
		{"to only", model.AutomationRuleModel{Active: true, TriggerToStage: uintPtr(2)}, task, 9, 2, true},
		{"to mismatch", model.AutomationRuleModel{Active: true, TriggerToStage: uintPtr(3)}, task, 1, 2, false},
		{"from mismatch", model.AutomationRuleModel{Active: true, TriggerFromStage: uintPtr(5)}, task, 1, 2, false},
		{"from and to", model.AutomationRuleModel{Active: true, TriggerFromStage: uintPtr(1), TriggerToStage: uintPtr(2)}, task, 1, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(tt.task, tt.from, tt.to))
		})
	}
}

// TestTeamSet 测试 nil 表示不受限
func TestTeamSet(t *testing.T) {
	var unrestricted *model.TeamSet
	assert.True(t, unrestricted.Unrestricted())
	assert.True(t, unrestricted.Contains(42))
	assert.True(t, unrestricted.ContainsRef(nil))
	assert.Nil(t, unrestricted.IDs())

	set := model.NewTeamSet(3, 1, 3)
	assert.False(t, set.Unrestricted())
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []uint{1, 3}, set.IDs())
	assert.True(t, set.ContainsRef(uintPtr(1)))
	assert.False(t, set.ContainsRef(nil))
	assert.False(t, set.Contains(2))

	empty := model.NewTeamSet()
	assert.False(t, empty.Unrestricted())
	assert.Empty(t, empty.IDs())
}

// TestStageNameCategories 测试阶段名称分类不区分大小写
func TestStageNameCategories(t *testing.T) {
	assert.True(t, model.StageNameIsDone("Concluído"))
	assert.True(t, model.StageNameIsDone("DONE"))
	assert.True(t, model.StageNameIsInProgress("Em Produção"))
	assert.True(t, model.StageNameIsInProgress("Doing"))
	assert.True(t, model.StageNameIsQueued("Na fila"))
	assert.True(t, model.StageNameIsQueued("todo"))
	assert.False(t, model.StageNameIsDone("Fila"))
	assert.True(t, (&model.StageModel{Name: "Concluído"}).IsDone())
}

// TestValidate 测试必填字段校验
func TestValidate(t *testing.T) {
	assert.Error(t, (&model.TaskModel{ClientID: "c", StageID: 1}).Validate())
	assert.Error(t, (&model.TaskModel{Title: "t", StageID: 1, Priority: "urgente", ClientID: "c"}).Validate())
	assert.NoError(t, (&model.TaskModel{Title: "t", ClientID: "c", StageID: 1, Priority: model.PriorityAlta}).Validate())

	assert.Error(t, (&model.StageModel{Name: "  "}).Validate())
	assert.Error(t, (&model.AutomationRuleModel{Name: "r", Action: "email"}).Validate())
	assert.Error(t, (&model.RecurrenceRuleModel{Name: "r", SourceTaskID: 1, Frequency: "yearly", Interval: 1}).Validate())
	assert.Error(t, (&model.RecurrenceRuleModel{Name: "r", SourceTaskID: 1, Frequency: model.FrequencyDaily, Interval: 0}).Validate())
	assert.Error(t, (&model.TeamMembershipModel{TeamID: 1, UserID: 1, Role: "owner"}).Validate())
	assert.NoError(t, (&model.TeamMembershipModel{TeamID: 1, UserID: 1, Role: model.RoleGerente}).Validate())
}
