package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestTaskRepository_FindByID 测试根据 ID 查找任务
func TestTaskRepository_FindByID(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	seedTask(t, db, "t1", 1, model.TaskStateInProgress, "w1", "m1", "m2")

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateInProgress, found.TaskData.State)
	assert.Equal(t, "w1", *found.TaskData.AssigneeID)
	assert.Equal(t, []string{"m1", "m2"}, []string(found.TaskData.Machines))

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestTaskRepository_FindByFilter 测试过滤和创建顺序
func TestTaskRepository_FindByFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	seedTask(t, db, "t3", 3, model.TaskStateDraft, "")
	seedTask(t, db, "t1", 1, model.TaskStateDraft, "")
	seedTask(t, db, "t2", 2, model.TaskStateAssigned, "w1")

	drafts, err := repo.FindByState(ctx, model.TaskStateDraft)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "t1", drafts[0].ID)
	assert.Equal(t, "t3", drafts[1].ID)

	all, err := repo.FindByFilter(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byAssignee, err := repo.FindByFilter(ctx, &repository.TaskFilter{AssigneeID: strPtr("w1")})
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, "t2", byAssignee[0].ID)
}

// TestTaskRepository_Counts 测试负载统计
func TestTaskRepository_Counts(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	seedTask(t, db, "t1", 1, model.TaskStateAssigned, "w1")
	seedTask(t, db, "t2", 2, model.TaskStateInProgress, "w1", "m1")
	seedTask(t, db, "t3", 3, model.TaskStateSuccess, "w1")
	seedTask(t, db, "t4", 4, model.TaskStateAssigned, "w2")

	counts, err := repo.CountByAssignees(ctx, []string{"w1", "w2", "w3"}, model.TaskStateAssigned, model.TaskStateInProgress)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"w1": 2, "w2": 1, "w3": 0}, counts)

	weekly, err := repo.CountAssignedBetween(ctx, []string{"w1", "w2"}, baseTime, baseTime.Add(150*time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"w1": 2, "w2": 0}, weekly)

	inWindow, err := repo.FindAssignedBetween(ctx, "w1", baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inWindow, 3)

	byState, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byState[model.TaskStateAssigned])
	assert.Equal(t, int64(1), byState[model.TaskStateSuccess])

	typed, err := repo.CountByTaskType(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), typed)
}

// TestTaskRepository_BusyMachines 测试占用机器推导
func TestTaskRepository_BusyMachines(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)

	seedTask(t, db, "t1", 1, model.TaskStateInProgress, "w1", "m1", "m2")
	seedTask(t, db, "t2", 2, model.TaskStateInProgress, "w2", "m3")
	seedTask(t, db, "t3", 3, model.TaskStateSuccess, "w3")

	busy, err := repo.BusyMachines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m1": "t1", "m2": "t1", "m3": "t2"}, busy)
}

// TestTaskRepository_UpdateIfState 测试条件更新
func TestTaskRepository_UpdateIfState(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	seedTask(t, db, "t1", 1, model.TaskStateDraft, "")

	ok, err := repo.UpdateIfState(ctx, "t1", model.TaskStateDraft, map[string]interface{}{
		"state":       model.TaskStateAssigned,
		"assignee_id": "w1",
		"assign_time": time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// 状态已变化,第二次不再命中
	ok, err = repo.UpdateIfState(ctx, "t1", model.TaskStateDraft, map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateAssigned, found.TaskData.State)
	assert.Equal(t, "task t1", found.Name)
}

// TestTaskRepository_DeleteIfState 测试条件删除
func TestTaskRepository_DeleteIfState(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	seedTask(t, db, "t1", 1, model.TaskStateAssigned, "w1")
	seedTask(t, db, "t2", 2, model.TaskStateDraft, "")

	ok, err := repo.DeleteIfState(ctx, "t1", model.TaskStateDraft)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DeleteIfState(ctx, "t2", model.TaskStateDraft)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestTaskRepository_WithTx 测试事务回滚
func TestTaskRepository_WithTx(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		task := &model.TaskModel{ID: "tx-1", TaskTypeID: "tt-1", Name: "tx"}
		task.TaskData.State = model.TaskStateDraft
		task.TaskData.Machines = datatypes.JSONSlice[string]{}
		if err := repo.WithTx(tx).Create(ctx, task); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	_, err = repo.FindByID(ctx, "tx-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
