package model

import (
	"errors"
	"strings"
	"time"
)

// StageModel 看板阶段数据模型
type StageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(80);not null;uniqueIndex" json:"name"`
	SortOrder int       `gorm:"not null;default:0;index" json:"sort_order"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (StageModel) TableName() string {
	return "task_stages"
}

// Validate 验证阶段模型
func (s *StageModel) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("stage name is required")
	}
	return nil
}

// IsDone 阶段名称是否表示已完成
func (s *StageModel) IsDone() bool {
	return StageNameIsDone(s.Name)
}

// StageNameIsDone 名称包含 done 或 concl（不区分大小写）即视为完成阶段
func StageNameIsDone(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "done") || strings.Contains(n, "concl")
}

// StageNameIsInProgress 名称包含 produção 或 doing
func StageNameIsInProgress(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "produção") || strings.Contains(n, "doing")
}

// StageNameIsQueued 名称包含 fila 或 todo
func StageNameIsQueued(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "fila") || strings.Contains(n, "todo")
}
