package model

import (
	"errors"
	"strings"
	"time"
)

// 自动化动作
const (
	ActionComment = "comment"
	ActionNotify  = "notify"
)

// AutomationRuleModel 阶段流转自动化规则
// 为空的作用域字段和触发字段均表示通配
type AutomationRuleModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(120);not null" json:"name"`
	WorkspaceID      *uint     `gorm:"index" json:"workspace_id"`
	TeamID           *uint     `gorm:"index" json:"team_id"`
	TriggerFromStage *uint     `json:"trigger_from_stage"`
	TriggerToStage   *uint     `json:"trigger_to_stage"`
	Action           string    `gorm:"type:varchar(20);not null;default:comment" json:"action"`
	MessageTemplate  string    `gorm:"type:text" json:"message_template"`
	Active           bool      `gorm:"not null;index" json:"active"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (AutomationRuleModel) TableName() string {
	return "task_automation_rules"
}

// Validate 验证自动化规则
func (r *AutomationRuleModel) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if r.Action != ActionComment && r.Action != ActionNotify {
		return errors.New("invalid automation action")
	}
	return nil
}

// Matches 规则是否适用于给定任务和阶段流转
func (r *AutomationRuleModel) Matches(task *TaskModel, fromStage, toStage uint) bool {
	if !r.Active {
		return false
	}
	if !scopeMatches(r.WorkspaceID, task.WorkspaceID) || !scopeMatches(r.TeamID, task.TeamID) {
		return false
	}
	if r.TriggerFromStage != nil && *r.TriggerFromStage != fromStage {
		return false
	}
	if r.TriggerToStage != nil && *r.TriggerToStage != toStage {
		return false
	}
	return true
}

// scopeMatches 规则作用域为空时匹配任意任务,否则要求任务字段完全相同
func scopeMatches(rule, task *uint) bool {
	if rule == nil {
		return true
	}
	return task != nil && *task == *rule
}
