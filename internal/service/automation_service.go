package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 自动化评论前缀
const (
	PrefixAutoComment = "[AUTO]"
	PrefixAutoNotify  = "[AUTO-NOTIFY]"
	AutomationAuthor  = "automation"
)

// 模板占位符, 仅支持以下三个
const (
	PlaceholderTaskTitle = "{{task_title}}"
	PlaceholderFromStage = "{{from_stage}}"
	PlaceholderToStage   = "{{to_stage}}"
)

// TemplateVars 模板变量
type TemplateVars struct {
	TaskTitle string
	FromStage string
	ToStage   string
}

// MessageTemplate 自动化消息模板, 只做字面量替换
type MessageTemplate struct {
	text string
}

// ParseMessageTemplate 解析模板文本
func ParseMessageTemplate(text string) MessageTemplate {
	return MessageTemplate{text: strings.TrimSpace(text)}
}

// Empty 模板是否为空
func (t MessageTemplate) Empty() bool {
	return t.text == ""
}

// Render 渲染模板
func (t MessageTemplate) Render(vars TemplateVars) string {
	r := strings.NewReplacer(
		PlaceholderTaskTitle, vars.TaskTitle,
		PlaceholderFromStage, vars.FromStage,
		PlaceholderToStage, vars.ToStage,
	)
	return r.Replace(t.text)
}

// AutomationService 阶段流转自动化引擎
type AutomationService interface {
	// RunStageAutomations 执行匹配的规则, 返回写入的评论数
	RunStageAutomations(ctx context.Context, task *model.TaskModel, oldStageID, newStageID uint, actor string) (int, error)
}

type automationService struct {
	db     *gorm.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewAutomationService 创建自动化引擎
func NewAutomationService(db *gorm.DB, logger logrus.FieldLogger) AutomationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &automationService{db: db, logger: logger, now: utcNow}
}

// BuildAutomationMessage 生成规则对应的评论内容（含前缀）
func BuildAutomationMessage(rule *model.AutomationRuleModel, task *model.TaskModel, oldStageID, newStageID uint) string {
	tpl := ParseMessageTemplate(rule.MessageTemplate)
	msg := fmt.Sprintf("Automation '%s' executed on stage change", rule.Name)
	if !tpl.Empty() {
		msg = tpl.Render(TemplateVars{
			TaskTitle: task.Title,
			FromStage: stageText(oldStageID),
			ToStage:   stageText(newStageID),
		})
	}
	prefix := PrefixAutoComment
	if rule.Action == model.ActionNotify {
		prefix = PrefixAutoNotify
	}
	return prefix + " " + msg
}

func stageText(id uint) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

func (s *automationService) RunStageAutomations(ctx context.Context, task *model.TaskModel, oldStageID, newStageID uint, actor string) (int, error) {
	rules, err := repository.NewAutomationRuleRepository(s.db).FindActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load automation rules: %w", err)
	}

	author := actor
	if author == "" {
		author = AutomationAuthor
	}

	var firedActions []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comments := repository.NewCommentRepository(tx)
		for _, rule := range rules {
			if !rule.Matches(task, oldStageID, newStageID) {
				continue
			}
			c := &model.CommentModel{
				TaskID:    task.ID,
				Comment:   BuildAutomationMessage(rule, task, oldStageID, newStageID),
				Author:    author,
				CreatedAt: s.now(),
			}
			if err := comments.Create(ctx, c); err != nil {
				return fmt.Errorf("failed to write automation comment for rule %d: %w", rule.ID, err)
			}
			firedActions = append(firedActions, rule.Action)
			s.logger.WithFields(logrus.Fields{
				"task_id": task.ID,
				"rule_id": rule.ID,
				"action":  rule.Action,
			}).Debug("automation fired")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, action := range firedActions {
		metrics.RecordAutomationFired(action)
	}
	return len(firedActions), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
