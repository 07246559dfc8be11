package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/database"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB 创建迁移完成的内存数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func uintPtr(v uint) *uint { return &v }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

var adminPrincipal = &auth.Principal{ID: 999, Name: "Admin", Email: "admin@example.com", IsAdmin: true}

func createStage(t *testing.T, db *gorm.DB, name string, order int) *model.StageModel {
	t.Helper()
	st := &model.StageModel{Name: name, SortOrder: order, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(st).Error)
	return st
}

func createWorkspace(t *testing.T, db *gorm.DB, name string) *model.WorkspaceModel {
	t.Helper()
	ws := &model.WorkspaceModel{Name: name, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(ws).Error)
	return ws
}

func createTeam(t *testing.T, db *gorm.DB, workspaceID uint, name string) *model.TeamModel {
	t.Helper()
	team := &model.TeamModel{WorkspaceID: workspaceID, Name: name, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(team).Error)
	return team
}

// createMember 创建用户并加入团队, 返回对应主体
func createMember(t *testing.T, db *gorm.DB, email, name string, teamID uint, role string) *auth.Principal {
	t.Helper()
	u := &model.UserModel{Email: email, Name: name, PasswordHash: "x", Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(u).Error)
	if teamID != 0 {
		addMembership(t, db, teamID, u.ID, role)
	}
	return auth.PrincipalFromUser(u)
}

func addMembership(t *testing.T, db *gorm.DB, teamID, userID uint, role string) {
	t.Helper()
	m := &model.TeamMembershipModel{TeamID: teamID, UserID: userID, Role: role, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(m).Error)
}

func createTask(t *testing.T, db *gorm.DB, task *model.TaskModel) *model.TaskModel {
	t.Helper()
	if task.ClientID == "" {
		task.ClientID = "client-1"
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedia
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
		task.UpdatedAt = task.CreatedAt
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func newPermissions(db *gorm.DB) service.PermissionResolver {
	return service.NewPermissionResolver(repository.NewMembershipRepository(db), nil, nil)
}

func stagePositions(t *testing.T, db *gorm.DB, stageID uint) map[uint]int {
	t.Helper()
	tasks, err := repository.NewTaskRepository(db).FindSiblings(context.Background(), stageID, false)
	require.NoError(t, err)
	out := make(map[uint]int, len(tasks))
	for _, task := range tasks {
		out[task.ID] = task.Position
	}
	return out
}
