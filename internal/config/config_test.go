package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/labtask-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoad_FromFile 测试从配置文件加载配置
func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
  path: /tmp/lab.db
scheduler:
  lock_backend: redis
  preview_mode: weekly
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/lab.db", cfg.Database.Path)
	assert.Equal(t, "redis", cfg.Scheduler.LockBackend)
	assert.Equal(t, "weekly", cfg.Scheduler.PreviewMode)
	assert.Equal(t, 60, cfg.JWT.ExpireMinutes)
}

// TestLoad_EnvOverride 测试环境变量覆盖配置
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "7070")
	t.Setenv("APP_JWT_SECRET", "from-env")

	path := writeConfig(t, "server:\n  port: 9000\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

// TestLoad_RejectsUnknownEnums 测试非法枚举配置
func TestLoad_RejectsUnknownEnums(t *testing.T) {
	cases := map[string]string{
		"driver":  "database:\n  driver: mysql\n",
		"lock":    "scheduler:\n  lock_backend: etcd\n",
		"preview": "scheduler:\n  preview_mode: monthly\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

// TestLoad_ProductionRequiresSecret 测试生产环境必须配置密钥
func TestLoad_ProductionRequiresSecret(t *testing.T) {
	_, err := config.Load(writeConfig(t, "env: production\n"))
	assert.Error(t, err)

	cfg, err := config.Load(writeConfig(t, "env: production\njwt:\n  secret: s3cret\n"))
	require.NoError(t, err)
	assert.True(t, config.IsProduction(cfg))
}

// TestDefault 测试默认配置
func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "local", cfg.Scheduler.LockBackend)
	assert.Equal(t, "current", cfg.Scheduler.PreviewMode)
	assert.Equal(t, 8080, cfg.Server.Port)
}

// TestConfigWatcher_Reload 测试配置文件变更后回调被调用
func TestConfigWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, path, nil)
	var mu sync.Mutex
	var level string
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		level = c.Log.Level
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return level == "error"
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "error", watcher.GetConfig().Log.Level)
}
