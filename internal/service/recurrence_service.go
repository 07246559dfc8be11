package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CronActor 定时任务使用的操作人
const CronActor = "recurrence-cron"

// PrefixRecurrenceComment 循环任务评论前缀
const PrefixRecurrenceComment = "[AUTO-RECORRÊNCIA]"

// NextRun 计算下一次执行时间, monthly 固定按 30 天计算
func NextRun(base time.Time, frequency string, interval int) time.Time {
	if interval < 1 {
		interval = 1
	}
	switch frequency {
	case model.FrequencyDaily:
		return base.AddDate(0, 0, interval)
	case model.FrequencyWeekly:
		return base.AddDate(0, 0, 7*interval)
	default:
		return base.AddDate(0, 0, 30*interval)
	}
}

// RecurrenceRunResult 一次执行的结果
type RecurrenceRunResult struct {
	Created []uint `json:"created"` // 新建任务 ID
	Skipped int    `json:"skipped"`
}

// RecurrenceService 循环任务执行
type RecurrenceService interface {
	RunDueRecurrences(ctx context.Context, actor string) (*RecurrenceRunResult, error)
}

type recurrenceService struct {
	db       *gorm.DB
	notifier NotificationService
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewRecurrenceService 创建循环任务服务, notifier 可为 nil
func NewRecurrenceService(db *gorm.DB, notifier NotificationService, logger logrus.FieldLogger) RecurrenceService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &recurrenceService{db: db, notifier: notifier, logger: logger, now: utcNow}
}

var errRuleClaimed = errors.New("recurrence rule already claimed")

func (s *recurrenceService) RunDueRecurrences(ctx context.Context, actor string) (*RecurrenceRunResult, error) {
	if actor == "" {
		actor = auth.SystemActor
	}
	now := s.now()

	rules, err := repository.NewRecurrenceRuleRepository(s.db).FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load due recurrence rules: %w", err)
	}

	result := &RecurrenceRunResult{Created: []uint{}}
	for _, rule := range rules {
		task, err := s.runRule(ctx, rule, actor, now)
		if err != nil {
			if errors.Is(err, errRuleClaimed) || errors.Is(err, repository.ErrNotFound) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to run recurrence rule %d: %w", rule.ID, err)
		}
		result.Created = append(result.Created, task.ID)
		metrics.RecordRecurrenceMaterialized()

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, task, model.EventCreated, createdMessage(task)); err != nil {
				s.logger.WithError(err).WithField("task_id", task.ID).Warn("failed to emit created notification")
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"actor":   actor,
		"created": len(result.Created),
		"skipped": result.Skipped,
	}).Info("recurrence pass finished")
	return result, nil
}

// runRule 在单个事务内抢占规则并生成任务
func (s *recurrenceService) runRule(ctx context.Context, rule *model.RecurrenceRuleModel, actor string, now time.Time) (*model.TaskModel, error) {
	var created *model.TaskModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := repository.NewTaskRepository(tx)

		src, err := tasks.FindByID(ctx, rule.SourceTaskID)
		if err != nil {
			return err
		}

		claimed, err := repository.NewRecurrenceRuleRepository(tx).Advance(ctx, rule.ID, rule.NextRunAt, now, NextRun(now, rule.Frequency, rule.Interval))
		if err != nil {
			return err
		}
		if !claimed {
			return errRuleClaimed
		}

		maxPos, err := tasks.MaxPosition(ctx, src.StageID)
		if err != nil {
			return err
		}
		task := cloneTask(src)
		task.CreatedBy = actor
		task.CreatedAt = now
		task.UpdatedAt = now
		task.Position = maxPos + 1
		if err := tasks.Create(ctx, task); err != nil {
			return err
		}

		comment := &model.CommentModel{
			TaskID:    task.ID,
			Comment:   fmt.Sprintf("%s Created from rule '%s'.", PrefixRecurrenceComment, rule.Name),
			Author:    actor,
			CreatedAt: now,
		}
		if err := repository.NewCommentRepository(tx).Create(ctx, comment); err != nil {
			return err
		}
		created = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func cloneTask(src *model.TaskModel) *model.TaskModel {
	t := &model.TaskModel{
		Title:       src.Title,
		ClientID:    src.ClientID,
		Description: src.Description,
		StageID:     src.StageID,
		AssignedTo:  src.AssignedTo,
		Priority:    src.Priority,
	}
	if src.WorkspaceID != nil {
		v := *src.WorkspaceID
		t.WorkspaceID = &v
	}
	if src.TeamID != nil {
		v := *src.TeamID
		t.TeamID = &v
	}
	if src.DueDate != nil {
		v := *src.DueDate
		t.DueDate = &v
	}
	return t
}

func createdMessage(task *model.TaskModel) string {
	return "New task created: " + task.Title
}
