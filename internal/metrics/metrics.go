package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mautops/crm-gin/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务创建数
	tasksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Total number of tasks created",
		},
	)

	// 阶段流转数
	tasksMovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_moved_total",
			Help: "Total number of task stage changes",
		},
	)

	automationsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automations_fired_total",
			Help: "Total number of automation rules fired",
		},
		[]string{"action"}, // comment, notify
	)

	recurrencesMaterializedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recurrences_materialized_total",
			Help: "Total number of tasks created by recurrence rules",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications emitted",
		},
		[]string{"event_type"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 各阶段任务数
	tasksByStage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_by_stage",
			Help: "Number of tasks by stage",
		},
		[]string{"stage"},
	)

	// 未读通知数
	notificationsUnread = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_unread",
			Help: "Number of unread notifications",
		},
	)

	// 到期未执行的循环规则数
	recurrenceRulesDue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recurrence_rules_due",
			Help: "Number of active recurrence rules whose next run is due",
		},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(tasksCreatedTotal)
	prometheus.MustRegister(tasksMovedTotal)
	prometheus.MustRegister(automationsFiredTotal)
	prometheus.MustRegister(recurrencesMaterializedTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(tasksByStage)
	prometheus.MustRegister(notificationsUnread)
	prometheus.MustRegister(recurrenceRulesDue)

	// Go 运行时指标只注册一次, 已注册时忽略错误
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated() {
	tasksCreatedTotal.Inc()
}

// RecordTaskMoved 记录阶段流转
func RecordTaskMoved() {
	tasksMovedTotal.Inc()
}

// RecordAutomationFired 记录自动化规则触发
func RecordAutomationFired(action string) {
	automationsFiredTotal.WithLabelValues(action).Inc()
}

// RecordRecurrenceMaterialized 记录循环规则生成任务
func RecordRecurrenceMaterialized() {
	recurrencesMaterializedTotal.Inc()
}

// RecordNotification 记录通知
func RecordNotification(eventType string) {
	notificationsTotal.WithLabelValues(eventType).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTasksByStage 更新阶段任务数指标
func UpdateTasksByStage(stage string, count float64) {
	tasksByStage.WithLabelValues(stage).Set(count)
}

type stageCount struct {
	Name  string
	Count int64
}

// UpdateTaskDistribution 按阶段统计任务数
func UpdateTaskDistribution(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	var rows []stageCount
	err := db.Table("task_stages").
		Select("task_stages.name AS name, COUNT(tasks.id) AS count").
		Joins("LEFT JOIN tasks ON tasks.stage_id = task_stages.id").
		Group("task_stages.name").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to count tasks by stage: %w", err)
	}
	for _, r := range rows {
		UpdateTasksByStage(r.Name, float64(r.Count))
	}
	return nil
}

// UpdateBacklog 统计未读通知和到期循环规则
func UpdateBacklog(db *gorm.DB, now time.Time) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	var unread int64
	if err := db.Model(&model.NotificationModel{}).Where("read = ?", false).Count(&unread).Error; err != nil {
		return fmt.Errorf("failed to count unread notifications: %w", err)
	}
	var due int64
	err := db.Model(&model.RecurrenceRuleModel{}).
		Where("active = ?", true).
		Where("next_run_at IS NULL OR next_run_at <= ?", now).
		Count(&due).Error
	if err != nil {
		return fmt.Errorf("failed to count due recurrence rules: %w", err)
	}
	notificationsUnread.Set(float64(unread))
	recurrenceRulesDue.Set(float64(due))
	return nil
}
