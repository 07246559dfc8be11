package model

import (
	"errors"
	"strings"
	"time"
)

// 循环频率
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// ValidFrequency 频率是否合法
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// RecurrenceRuleModel 循环任务规则
type RecurrenceRuleModel struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string     `gorm:"type:varchar(120);not null" json:"name"`
	SourceTaskID uint       `gorm:"not null;index" json:"source_task_id"`
	Frequency    string     `gorm:"type:varchar(20);not null;default:weekly" json:"frequency"`
	Interval     int        `gorm:"not null;default:1" json:"interval"`
	Active       bool       `gorm:"not null;index" json:"active"`
	LastRunAt    *time.Time `json:"last_run_at"`
	NextRunAt    *time.Time `gorm:"index" json:"next_run_at"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (RecurrenceRuleModel) TableName() string {
	return "task_recurrence_rules"
}

// Validate 验证循环规则
func (r *RecurrenceRuleModel) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if r.SourceTaskID == 0 {
		return errors.New("source task is required")
	}
	if !ValidFrequency(r.Frequency) {
		return errors.New("invalid frequency")
	}
	if r.Interval < 1 {
		return errors.New("interval must be at least 1")
	}
	return nil
}
