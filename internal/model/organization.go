package model

import (
	"errors"
	"strings"
	"time"
)

// 团队角色
const (
	RoleColaborador    = "colaborador"
	RoleGerente        = "gerente"
	RoleAdminWorkspace = "admin_workspace"
)

// ValidRole 角色是否合法
func ValidRole(role string) bool {
	switch role {
	case RoleColaborador, RoleGerente, RoleAdminWorkspace:
		return true
	}
	return false
}

// WorkspaceModel 工作区数据模型
type WorkspaceModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(120);not null;uniqueIndex" json:"name"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (WorkspaceModel) TableName() string {
	return "workspaces"
}

// Validate 验证工作区模型
func (w *WorkspaceModel) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workspace name is required")
	}
	return nil
}

// TeamModel 团队数据模型,名称在工作区内唯一
type TeamModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID uint      `gorm:"not null;uniqueIndex:idx_team_workspace_name" json:"workspace_id"`
	Name        string    `gorm:"type:varchar(120);not null;uniqueIndex:idx_team_workspace_name" json:"name"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (TeamModel) TableName() string {
	return "teams"
}

// Validate 验证团队模型
func (t *TeamModel) Validate() error {
	if t.WorkspaceID == 0 {
		return errors.New("workspace is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("team name is required")
	}
	return nil
}

// TeamMembershipModel 团队成员关系
type TeamMembershipModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID    uint      `gorm:"not null;uniqueIndex:idx_membership_team_user" json:"team_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_membership_team_user;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(32);not null;default:colaborador" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (TeamMembershipModel) TableName() string {
	return "team_members"
}

// Validate 验证成员关系
func (m *TeamMembershipModel) Validate() error {
	if m.TeamID == 0 {
		return errors.New("team is required")
	}
	if m.UserID == 0 {
		return errors.New("user is required")
	}
	if !ValidRole(m.Role) {
		return errors.New("invalid team role")
	}
	return nil
}
