package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/database"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// setupTestDB 创建带完整表结构的 SQLite 测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "repo.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, database.Migrate(db))
	return db
}

var baseTime = time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// seedTask 写入一条任务,seq 决定创建顺序
func seedTask(t *testing.T, db *gorm.DB, id string, seq int, state model.TaskState, assignee string, machines ...string) *model.TaskModel {
	t.Helper()
	created := baseTime.Add(time.Duration(seq) * time.Minute)
	task := &model.TaskModel{
		ID:         id,
		TaskTypeID: "tt-1",
		Name:       "task " + id,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	task.TaskData.State = state
	task.TaskData.Machines = datatypes.JSONSlice[string](machines)
	if task.TaskData.Machines == nil {
		task.TaskData.Machines = datatypes.JSONSlice[string]{}
	}
	if assignee != "" {
		task.TaskData.AssigneeID = strPtr(assignee)
		task.TaskData.AssignTime = timePtr(created)
	}
	require.NoError(t, db.WithContext(context.Background()).Create(task).Error)
	return task
}
