package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/crm-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefault 测试默认配置
func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "session", cfg.Auth.Mode)
	assert.Equal(t, 14, cfg.Auth.SessionDays)
	assert.Equal(t, 15*time.Second, cfg.Auth.RoleCacheTTL)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Scheduler.RecurrenceInterval)
	assert.Equal(t, "recurrence-cron", cfg.Scheduler.Actor)
	assert.NoError(t, cfg.Validate())
}

// TestLoad_FileAndEnv 测试配置文件和环境变量覆盖
func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
env: production
database:
  driver: sqlite
  path: /tmp/crm.db
auth:
  mode: jwt
  jwt_secret: segredo
scheduler:
  enabled: true
  recurrence_interval: 30m
`)
	t.Setenv("APP_SERVER_PORT", "9090")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, config.IsProduction(cfg))
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RecurrenceInterval)
}

// TestLoad_Invalid 测试非法配置被拒绝
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"driver", "database:\n  driver: mysql\n"},
		{"jwt without secret", "auth:\n  mode: jwt\n"},
		{"auth mode", "auth:\n  mode: ldap\n"},
		{"s3 without bucket", "storage:\n  driver: s3\n"},
		{"storage driver", "storage:\n  driver: ftp\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestConfigWatcher_GetConfig 测试监听器返回初始配置
func TestConfigWatcher_GetConfig(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	w := config.NewConfigWatcher(cfg, path, nil)
	require.NoError(t, w.Start())
	defer w.Stop()
	assert.Same(t, cfg, w.GetConfig())
}
