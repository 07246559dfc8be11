package model

import (
	"errors"
	"strings"
	"time"
)

// 任务优先级
const (
	PriorityAlta  = "alta"
	PriorityMedia = "media"
	PriorityBaixa = "baixa"
)

// ValidPriority 优先级是否合法
func ValidPriority(p string) bool {
	switch p {
	case PriorityAlta, PriorityMedia, PriorityBaixa:
		return true
	}
	return false
}

// TaskModel 任务数据模型
type TaskModel struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string      `gorm:"type:varchar(200);not null" json:"title"`
	ClientID    string      `gorm:"type:varchar(64);not null;index" json:"client_id"` // 外部客户 ID
	Description string      `gorm:"type:text" json:"description"`
	StageID     uint        `gorm:"not null;index:idx_tasks_stage_position,priority:1" json:"stage_id"`
	Stage       *StageModel `gorm:"foreignKey:StageID;constraint:OnDelete:RESTRICT" json:"-"` // 被引用的阶段不可删除
	WorkspaceID *uint       `gorm:"index" json:"workspace_id"`
	TeamID      *uint       `gorm:"index" json:"team_id"`
	AssignedTo  string      `gorm:"type:varchar(255)" json:"assigned_to"` // 自由文本的负责人列表
	DueDate     *time.Time  `gorm:"type:date" json:"due_date"`
	Priority    string      `gorm:"type:varchar(10);not null;default:media" json:"priority"`
	Position    int         `gorm:"not null;default:0;index:idx_tasks_stage_position,priority:2" json:"position"`
	CreatedBy   string      `gorm:"type:varchar(255)" json:"created_by"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if strings.TrimSpace(tm.Title) == "" {
		return errors.New("task title is required")
	}
	if strings.TrimSpace(tm.ClientID) == "" {
		return errors.New("client is required")
	}
	if tm.StageID == 0 {
		return errors.New("stage is required")
	}
	if tm.Priority != "" && !ValidPriority(tm.Priority) {
		return errors.New("invalid priority")
	}
	if tm.Position < 0 {
		return errors.New("position must be non-negative")
	}
	return nil
}

// CommentModel 任务评论,只追加
type CommentModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID    uint      `gorm:"not null;index" json:"task_id"`
	Comment   string    `gorm:"type:text;not null" json:"comment"`
	Author    string    `gorm:"type:varchar(255)" json:"author"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (CommentModel) TableName() string {
	return "task_comments"
}

// AttachmentModel 任务附件,File 存储返回的引用
type AttachmentModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID     uint      `gorm:"not null;index" json:"task_id"`
	File       string    `gorm:"type:varchar(512);not null" json:"file"`
	Filename   string    `gorm:"type:varchar(255)" json:"filename"`
	UploadedBy string    `gorm:"type:varchar(255)" json:"uploaded_by"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (AttachmentModel) TableName() string {
	return "task_attachments"
}
