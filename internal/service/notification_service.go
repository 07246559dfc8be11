package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationListLimit 通知列表最多返回条数
const NotificationListLimit = 200

const isoDate = "2006-01-02"

// NotificationService 通知生成与查询
type NotificationService interface {
	Notify(ctx context.Context, task *model.TaskModel, eventType string, message string) error
	// EnsureDueNotifications 为即将到期和已逾期任务补发当日提醒, 返回新增条数
	EnsureDueNotifications(ctx context.Context, tasks []*model.TaskModel) (int, error)
	List(ctx context.Context, p *auth.Principal) (*NotificationList, error)
	UnreadCount(ctx context.Context, p *auth.Principal) (int64, error)
	MarkRead(ctx context.Context, p *auth.Principal, id uint) error
	MarkAllRead(ctx context.Context, p *auth.Principal) (int64, error)
}

// NotificationList 通知列表
type NotificationList struct {
	Notifications []*model.NotificationModel `json:"notifications"`
	UnreadCount   int64                      `json:"unread_count"`
}

type notificationService struct {
	db          *gorm.DB
	permissions PermissionResolver
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewNotificationService 创建通知服务
func NewNotificationService(db *gorm.DB, permissions PermissionResolver, logger logrus.FieldLogger) NotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &notificationService{db: db, permissions: permissions, logger: logger, now: utcNow}
}

// DueSoonKey 到期提醒去重键
func DueSoonKey(tomorrow time.Time) string {
	return "[DUE_SOON:" + tomorrow.Format(isoDate) + "]"
}

// OverdueKey 逾期提醒去重键
func OverdueKey(today time.Time) string {
	return "[OVERDUE:" + today.Format(isoDate) + "]"
}

func (s *notificationService) Notify(ctx context.Context, task *model.TaskModel, eventType string, message string) error {
	n := &model.NotificationModel{
		TaskID:    task.ID,
		TeamID:    task.TeamID,
		EventType: eventType,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := repository.NewNotificationRepository(s.db).Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	metrics.RecordNotification(eventType)
	return nil
}

func (s *notificationService) EnsureDueNotifications(ctx context.Context, tasks []*model.TaskModel) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	now := s.now()
	today := dateOf(now)
	tomorrow := today.AddDate(0, 0, 1)

	// 逾期判断需要阶段名称, 批量加载
	stageIDs := make([]uint, 0, len(tasks))
	for _, t := range tasks {
		if t.DueDate != nil {
			stageIDs = append(stageIDs, t.StageID)
		}
	}
	stages, err := repository.NewStageRepository(s.db).FindByIDs(ctx, uniqueUints(stageIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to load stages: %w", err)
	}

	repo := repository.NewNotificationRepository(s.db)
	created := 0
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		due := dateOf(*t.DueDate)

		var eventType, key, msg string
		switch {
		case due.Equal(tomorrow):
			eventType = model.EventDueSoon
			key = DueSoonKey(tomorrow)
			msg = fmt.Sprintf("%s Task '%s' is due tomorrow.", key, t.Title)
		case due.Before(today):
			if st, ok := stages[t.StageID]; ok && st.IsDone() {
				continue
			}
			eventType = model.EventOverdue
			key = OverdueKey(today)
			msg = fmt.Sprintf("%s Task '%s' is overdue.", key, t.Title)
		default:
			continue
		}

		dedup := key
		ok, err := repo.CreateIfAbsent(ctx, &model.NotificationModel{
			TaskID:    t.ID,
			TeamID:    t.TeamID,
			EventType: eventType,
			DedupKey:  &dedup,
			Message:   msg,
			CreatedAt: now,
		})
		if err != nil {
			return created, fmt.Errorf("failed to create %s notification for task %d: %w", eventType, t.ID, err)
		}
		if ok {
			created++
			metrics.RecordNotification(eventType)
		}
	}
	return created, nil
}

func (s *notificationService) List(ctx context.Context, p *auth.Principal) (*NotificationList, error) {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return nil, err
	}
	repo := repository.NewNotificationRepository(s.db)
	list, err := repo.FindVisible(ctx, scope, NotificationListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	unread, err := repo.CountUnread(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	return &NotificationList{Notifications: list, UnreadCount: unread}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, p *auth.Principal) (int64, error) {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return 0, err
	}
	return repository.NewNotificationRepository(s.db).CountUnread(ctx, scope)
}

func (s *notificationService) MarkRead(ctx context.Context, p *auth.Principal, id uint) error {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return err
	}
	err = repository.NewNotificationRepository(s.db).MarkRead(ctx, id, scope)
	if err == repository.ErrNotFound {
		return notFoundError("notification %d not found", id)
	}
	return err
}

func (s *notificationService) MarkAllRead(ctx context.Context, p *auth.Principal) (int64, error) {
	scope, err := s.permissions.AllowedTeamIDs(ctx, p)
	if err != nil {
		return 0, err
	}
	return repository.NewNotificationRepository(s.db).MarkAllRead(ctx, scope)
}

// dateOf 取日期部分（UTC 零点）
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func uniqueUints(in []uint) []uint {
	seen := make(map[uint]struct{}, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
