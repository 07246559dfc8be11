package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// TestRecorders 测试业务指标出现在导出结果中
func TestRecorders(t *testing.T) {
	metrics.RecordAPIRequest(http.MethodGet, "/api/v1/tasks", http.StatusOK, 0.01)
	metrics.RecordTaskCreated()
	metrics.RecordTaskMoved()
	metrics.RecordAutomationFired(model.ActionComment)
	metrics.RecordRecurrenceMaterialized()
	metrics.RecordNotification(model.EventOverdue)

	body := scrape(t)
	assert.Contains(t, body, `api_requests_total{method="GET",path="/api/v1/tasks",status="200"}`)
	assert.Contains(t, body, "tasks_created_total")
	assert.Contains(t, body, `notifications_total{event_type="overdue"}`)
}

// TestCollector_CollectOnce 测试采集数据库连接和阶段分布
func TestCollector_CollectOnce(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	stage := &model.StageModel{Name: "Fila", SortOrder: 1, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(stage).Error)

	key := "[OVERDUE:2025-05-03]"
	require.NoError(t, db.Create(&model.NotificationModel{TaskID: 1, EventType: model.EventOverdue, DedupKey: &key, Message: "m", CreatedAt: time.Now().UTC()}).Error)
	require.NoError(t, db.Create(&model.RecurrenceRuleModel{Name: "r", SourceTaskID: 1, Frequency: model.FrequencyDaily, Interval: 1, Active: true, CreatedAt: time.Now().UTC()}).Error)

	c := metrics.NewCollector(db, time.Minute, nil)
	c.CollectOnce()

	body := scrape(t)
	assert.Contains(t, body, `tasks_by_stage{stage="Fila"} 0`)
	assert.Contains(t, body, "database_connections_max 1")
	assert.Contains(t, body, "notifications_unread 1")
	assert.Contains(t, body, "recurrence_rules_due 1")

	assert.Error(t, metrics.UpdateTaskDistribution(nil))
	assert.Error(t, metrics.UpdateDatabaseConnections(nil))
	assert.Error(t, metrics.UpdateBacklog(nil, time.Now()))
}
