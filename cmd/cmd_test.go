package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_Subcommands 测试子命令注册
func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"server", "migrate", "create-user", "seed"} {
		assert.True(t, names[name], name)
	}
	assert.NotNil(t, GetRootCmd().PersistentFlags().Lookup("config"))
}

// TestCreateUser_SQLite 测试使用 SQLite 创建初始管理员
func TestCreateUser_SQLite(t *testing.T) {
	t.Setenv("APP_DATABASE_DRIVER", "sqlite")
	t.Setenv("APP_DATABASE_PATH", filepath.Join(t.TempDir(), "lab.db"))
	t.Setenv("APP_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"create-user", "--name", "root", "--password", "secret123", "--role", "admin"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "created admin user root")

	root.SetArgs([]string{"migrate"})
	require.NoError(t, root.Execute())

	seedFile := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte("taskTypes:\n  - name: Stress\n    machineCount: 1\n"), 0644))
	out.Reset()
	root.SetArgs([]string{"seed", "--file", seedFile})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 created")
}

// TestApplyServerFlags 测试命令行标志覆盖配置
func TestApplyServerFlags(t *testing.T) {
	cfg, _, err := loadConfig(serverCmd)
	require.NoError(t, err)

	require.NoError(t, serverCmd.Flags().Set("port", "9191"))
	applyServerFlags(serverCmd, cfg)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}
