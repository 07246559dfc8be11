package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/api"
	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/container"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	cookie *http.Cookie
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
	cfg.Storage.LocalPath = t.TempDir()
	cfg.RateLimit.Enabled = false

	db, err := database.Connect(cfg.Database)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	c, err := container.NewContainerWithDB(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	router := api.SetupRoutes(api.RouterDeps{
		Config:        cfg,
		DB:            c.DB(),
		Storage:       c.Storage(),
		Authenticator: c.Authenticator(),
		Tasks:         c.Tasks(),
		Settings:      c.Settings(),
		Notifications: c.Notifications(),
		Workload:      c.Workload(),
		Statistics:    c.Statistics(),
	})
	return &testServer{router: router, db: db}
}

func (s *testServer) seedUser(t *testing.T, email string, admin bool) *model.UserModel {
	t.Helper()
	hash, err := auth.HashPassword("s3nha")
	require.NoError(t, err)
	u := &model.UserModel{Email: email, Name: email, PasswordHash: hash, IsAdmin: admin, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.db.Create(u).Error)
	return u
}

func (s *testServer) login(t *testing.T, email string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "s3nha"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.DefaultCookieName {
			s.cookie = c
		}
	}
	require.NotNil(t, s.cookie)
	assert.True(t, s.cookie.HttpOnly)
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cookie != nil {
		req.AddCookie(&http.Cookie{Name: s.cookie.Name, Value: s.cookie.Value})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

// TestRoutes_PublicEndpoints 测试公开接口和未匹配路由
func TestRoutes_PublicEndpoints(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "x@example.com", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRoutes_TaskFlow 测试登录后创建、移动、评论和上传附件
func TestRoutes_TaskFlow(t *testing.T) {
	s := setupServer(t)
	s.seedUser(t, "admin@example.com", true)
	s.login(t, "admin@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me auth.Principal
	decodeData(t, w, &me)
	assert.True(t, me.IsAdmin)

	var queue, done model.StageModel
	w = s.do(t, http.MethodPost, "/api/v1/settings/stages", map[string]interface{}{"name": "Fila", "sort_order": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decodeData(t, w, &queue)
	w = s.do(t, http.MethodPost, "/api/v1/settings/stages", map[string]interface{}{"name": "Concluído", "sort_order": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decodeData(t, w, &done)

	w = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"title": "Proposta", "client_id": "client-1", "stage_id": queue.ID, "due_date": "2030-01-15",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var task model.TaskModel
	decodeData(t, w, &task)
	assert.Equal(t, 1, task.Position)

	w = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"title": "x", "client_id": "c", "stage_id": queue.ID, "due_date": "15/01/2030",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/"+itoa(task.ID)+"/move", map[string]interface{}{"stage_id": done.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/tasks/"+itoa(task.ID)+"/move", map[string]interface{}{"stage_id": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/abc/move", map[string]interface{}{"stage_id": done.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/"+itoa(task.ID)+"/comments", map[string]string{"comment": "ok"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// multipart 上传附件
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "contrato.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+itoa(task.ID)+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: s.cookie.Name, Value: s.cookie.Value})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/tasks/"+itoa(task.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Task struct {
			StageName string `json:"stage_name"`
		} `json:"task"`
		Comments    []json.RawMessage `json:"comments"`
		Attachments []json.RawMessage `json:"attachments"`
	}
	decodeData(t, w, &detail)
	assert.Equal(t, "Concluído", detail.Task.StageName)
	assert.Len(t, detail.Comments, 1)
	assert.Len(t, detail.Attachments, 1)

	w = s.do(t, http.MethodGet, "/api/v1/tasks/board", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 仍被任务引用的阶段不能删除
	w = s.do(t, http.MethodDelete, "/api/v1/settings/stages/"+itoa(done.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var unread struct {
		UnreadCount int64 `json:"unread_count"`
	}
	decodeData(t, w, &unread)
	assert.Equal(t, int64(3), unread.UnreadCount)

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRoutes_Forbidden 测试普通用户访问配置和无团队任务
func TestRoutes_Forbidden(t *testing.T) {
	s := setupServer(t)
	s.seedUser(t, "ana@example.com", false)
	s.login(t, "ana@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/settings/stages", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	stage := &model.StageModel{Name: "Fila", SortOrder: 1, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.db.Create(stage).Error)
	// 无团队任务可以创建, 但只对管理员可见
	w = s.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{"title": "x", "client_id": "c", "stage_id": stage.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var task model.TaskModel
	decodeData(t, w, &task)
	assert.Nil(t, task.TeamID)
	w = s.do(t, http.MethodGet, "/api/v1/tasks/"+itoa(task.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/workload?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/workload", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
