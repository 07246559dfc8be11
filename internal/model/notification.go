package model

import "time"

// 通知事件类型
const (
	EventCreated      = "created"
	EventStageChanged = "stage_changed"
	EventComment      = "comment"
	EventDueSoon      = "due_soon"
	EventOverdue      = "overdue"
)

// NotificationModel 任务通知
// DedupKey 只在提醒类通知上设置,(task_id, event_type, dedup_key) 唯一
type NotificationModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID    uint      `gorm:"not null;uniqueIndex:idx_notification_dedup,priority:1" json:"task_id"`
	TeamID    *uint     `gorm:"index" json:"team_id"`
	EventType string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_notification_dedup,priority:2" json:"event_type"`
	DedupKey  *string   `gorm:"type:varchar(64);uniqueIndex:idx_notification_dedup,priority:3" json:"dedup_key"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Read      bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "task_notifications"
}
