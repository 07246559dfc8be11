package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/mautops/crm-gin/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理数据库、存储、认证和全部业务服务
type Container struct {
	cfg           *config.Config
	db            *gorm.DB
	logger        logrus.FieldLogger
	store         storage.Storage
	roleCache     *auth.RoleCache
	authenticator auth.Authenticator
	permissions   service.PermissionResolver
	audit         service.AuditLogService
	notifications service.NotificationService
	automation    service.AutomationService
	recurrences   service.RecurrenceService
	tasks         service.TaskService
	settings      service.SettingsService
	workload      service.WorkloadService
	statistics    service.StatisticsService
}

// NewContainer 连接数据库并执行迁移后构建容器
func NewContainer(cfg *config.Config, logger logrus.FieldLogger) (*Container, error) {
	// 默认重试 3 次, 初始间隔 1 秒, 指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewContainerWithDB(cfg, db, logger)
}

// NewContainerWithDB 使用已有连接构建容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	authenticator, err := newAuthenticator(cfg.Auth, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	roleCache := auth.NewRoleCache(cfg.Auth.RoleCacheTTL)
	permissions := service.NewPermissionResolver(repository.NewMembershipRepository(db), roleCache, nil)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	notifications := service.NewNotificationService(db, permissions, logger.WithField("component", "notifications"))
	automation := service.NewAutomationService(db, logger.WithField("component", "automation"))
	recurrences := service.NewRecurrenceService(db, notifications, logger.WithField("component", "recurrence"))

	tasks := service.NewTaskService(service.TaskServiceDeps{
		DB:          db,
		Permissions: permissions,
		Automation:  automation,
		Notifier:    notifications,
		Storage:     store,
		Clients:     service.NewClientDirectory(repository.NewClientRepository(db)),
		Audit:       audit,
		Logger:      logger.WithField("component", "tasks"),
	})

	return &Container{
		cfg:           cfg,
		db:            db,
		logger:        logger,
		store:         store,
		roleCache:     roleCache,
		authenticator: authenticator,
		permissions:   permissions,
		audit:         audit,
		notifications: notifications,
		automation:    automation,
		recurrences:   recurrences,
		tasks:         tasks,
		settings:      service.NewSettingsService(db, recurrences, roleCache, audit, logger.WithField("component", "settings")),
		workload:      service.NewWorkloadService(db, permissions),
		statistics:    service.NewStatisticsService(db, permissions),
	}, nil
}

// newAuthenticator 按 auth.mode 选择会话或 JWT 认证
func newAuthenticator(cfg config.AuthConfig, db *gorm.DB) (auth.Authenticator, error) {
	users := repository.NewUserRepository(db)
	switch cfg.Mode {
	case "jwt":
		return auth.NewJWTManager(users, cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionDays)
	case "session", "":
		return auth.NewSessionManager(users, repository.NewSessionRepository(db), cfg.SessionDays), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}

// NewScheduler 根据配置创建循环任务调度器
func (c *Container) NewScheduler() *service.RecurrenceScheduler {
	return service.NewRecurrenceScheduler(
		c.recurrences,
		c.cfg.Scheduler.RecurrenceInterval,
		c.cfg.Scheduler.Actor,
		c.logger.WithField("component", "scheduler"),
	)
}

func (c *Container) Config() *config.Config                    { return c.cfg }
func (c *Container) DB() *gorm.DB                               { return c.db }
func (c *Container) Storage() storage.Storage                   { return c.store }
func (c *Container) RoleCache() *auth.RoleCache                 { return c.roleCache }
func (c *Container) Authenticator() auth.Authenticator          { return c.authenticator }
func (c *Container) Permissions() service.PermissionResolver    { return c.permissions }
func (c *Container) Notifications() service.NotificationService { return c.notifications }
func (c *Container) Recurrences() service.RecurrenceService     { return c.recurrences }
func (c *Container) Tasks() service.TaskService                 { return c.tasks }
func (c *Container) Settings() service.SettingsService          { return c.settings }
func (c *Container) Workload() service.WorkloadService          { return c.workload }
func (c *Container) Statistics() service.StatisticsService      { return c.statistics }

// Close 关闭数据库连接
func (c *Container) Close() error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
