package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// SQLiteDSN 为 sqlite 路径开启外键约束
func SQLiteDSN(path string) string {
	if strings.Contains(path, "_foreign_keys=") || strings.Contains(path, "_fk=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// GetPoolConfig 从配置读取连接池参数,未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pc := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pc.MaxIdleConns == 0 {
		pc.MaxIdleConns = 10
	}
	if pc.MaxOpenConns == 0 {
		pc.MaxOpenConns = 100
	}
	if pc.ConnMaxLifetime == 0 {
		pc.ConnMaxLifetime = 3600
	}
	if pc.ConnMaxIdleTime == 0 {
		pc.ConnMaxIdleTime = 600
	}
	return pc
}

// Open 根据驱动类型打开数据库
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// 统一使用 UTC, 保证 SQLite 文本时间可比较
		NowFunc: func() time.Time { return time.Now().UTC() },
		// 唯一约束冲突转换为 gorm.ErrDuplicatedKey
		TranslateError: true,
	}

	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(SQLiteDSN(cfg.Path)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return db, nil
	case "postgres", "":
		db, err := gorm.Open(postgres.Open(BuildDSN(cfg)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Connect 连接数据库并配置连接池
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pc := GetPoolConfig(cfg)
	if IsSQLite(db) {
		// sqlite 只允许单写连接
		pc.MaxOpenConns = 1
		pc.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pc.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pc.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pc.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pc.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接,间隔指数退避
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			if err = ping(db); err == nil {
				return db, nil
			}
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// IsSQLite 判断是否为 SQLite
func IsSQLite(db *gorm.DB) bool {
	name := db.Dialector.Name()
	return name == "sqlite" || name == "sqlite3"
}

// IsPostgres 判断是否为 PostgreSQL
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// Models 返回所有需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		&model.UserModel{},
		&model.SessionModel{},
		&model.ClientModel{},
		&model.StageModel{},
		&model.WorkspaceModel{},
		&model.TeamModel{},
		&model.TeamMembershipModel{},
		&model.TaskModel{},
		&model.CommentModel{},
		&model.AttachmentModel{},
		&model.AutomationRuleModel{},
		&model.RecurrenceRuleModel{},
		&model.NotificationModel{},
		&model.AuditLogModel{},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// CreateIndexes 创建模型标签之外的查询索引
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		sql  string
	}{
		{"idx_tasks_team_stage", "CREATE INDEX IF NOT EXISTS idx_tasks_team_stage ON tasks(team_id, stage_id)"},
		{"idx_tasks_due_date", "CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date)"},
		{"idx_comments_task_created", "CREATE INDEX IF NOT EXISTS idx_comments_task_created ON task_comments(task_id, created_at)"},
		{"idx_notifications_team_created", "CREATE INDEX IF NOT EXISTS idx_notifications_team_created ON task_notifications(team_id, created_at)"},
		{"idx_recurrence_active_next", "CREATE INDEX IF NOT EXISTS idx_recurrence_active_next ON task_recurrence_rules(active, next_run_at)"},
		{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	if IsPostgres(db) {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_title_lower ON tasks (lower(title))").Error; err != nil {
			return fmt.Errorf("failed to create idx_tasks_title_lower: %w", err)
		}
	}

	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	return ping(db) == nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
