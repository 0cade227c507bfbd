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

// TestTaskTypeRepository_CRUD 测试任务类型仓储
func TestTaskTypeRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewTaskTypeRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.TaskTypeModel{ID: "tt-1", Name: "electrical", MachineCount: 2, CreatedAt: baseTime}))
	require.NoError(t, repo.Create(ctx, &model.TaskTypeModel{ID: "tt-2", Name: "thermal", MachineCount: 1, CreatedAt: baseTime.Add(time.Minute)}))

	// 名称唯一
	assert.Error(t, repo.Create(ctx, &model.TaskTypeModel{ID: "tt-3", Name: "electrical", MachineCount: 1}))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "tt-1", all[0].ID)

	byIDs, err := repo.FindByIDs(ctx, []string{"tt-2", "nope"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)
	assert.Equal(t, 1, byIDs["tt-2"].MachineCount)

	ok, err := repo.ExistAll(ctx, []string{"tt-1", "tt-2", "tt-1"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ExistAll(ctx, []string{"tt-1", "nope"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Delete(ctx, "tt-2"))
	assert.ErrorIs(t, repo.Delete(ctx, "tt-2"), gorm.ErrRecordNotFound)
	_, err = repo.FindByID(ctx, "tt-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestMachineRepository_Order 测试机器按创建顺序返回
func TestMachineRepository_Order(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewMachineRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.MachineModel{ID: "m2", Name: "M2", TaskTypes: datatypes.JSONSlice[string]{"tt-1"}, CreatedAt: baseTime.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &model.MachineModel{ID: "m1", Name: "M1", TaskTypes: datatypes.JSONSlice[string]{"tt-1", "tt-2"}, CreatedAt: baseTime}))

	machines, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "m1", machines[0].ID)
	assert.True(t, machines[0].Supports("tt-2"))
	assert.False(t, machines[1].Supports("tt-2"))

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

// TestUserRepository_Queries 测试用户仓储查询
func TestUserRepository_Queries(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	users := []*model.UserModel{
		{ID: "u1", Name: "alice", PasswordHash: "h", Role: model.RoleAdmin, TaskTypes: datatypes.JSONSlice[string]{}, CreatedAt: baseTime},
		{ID: "u2", Name: "bob", PasswordHash: "h", Role: model.RoleWorker, TaskTypes: datatypes.JSONSlice[string]{"tt-1"}, CreatedAt: baseTime.Add(time.Minute)},
		{ID: "u3", Name: "carol", PasswordHash: "h", Role: model.RoleWorker, TaskTypes: datatypes.JSONSlice[string]{"tt-1", "tt-2"}, CreatedAt: baseTime.Add(2 * time.Minute)},
	}
	for _, u := range users {
		require.NoError(t, repo.Create(ctx, u))
	}

	workers, err := repo.FindByRole(ctx, model.RoleWorker)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "u2", workers[0].ID)
	assert.True(t, workers[1].HasSkill("tt-2"))

	byName, err := repo.FindByName(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "u3", byName.ID)

	byIDs, err := repo.FindByIDs(ctx, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	require.NoError(t, repo.Delete(ctx, "u1"))
	assert.ErrorIs(t, repo.Delete(ctx, "u1"), gorm.ErrRecordNotFound)
}

// TestMachineClaimRepository_ClaimRelease 测试机器占用与释放
func TestMachineClaimRepository_ClaimRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewMachineClaimRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Claim(ctx, "t1", []string{"m2", "m1"}, baseTime))

	claimed, err := repo.FindClaimed(ctx, []string{"m1", "m3"})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "t1", claimed[0].TaskID)

	// 重复占用被主键拒绝
	assert.Error(t, repo.Claim(ctx, "t2", []string{"m1"}, baseTime))

	released, err := repo.ReleaseByTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, released)

	released, err = repo.ReleaseByTask(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, released)

	require.NoError(t, repo.Claim(ctx, "t2", []string{"m1"}, baseTime))
}

// TestStateHistoryRepository_FindByTaskID 测试状态历史
func TestStateHistoryRepository_FindByTaskID(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewStateHistoryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.StateHistoryModel{
		ID: "h2", TaskID: "t1", FromState: model.TaskStateDraft, ToState: model.TaskStateAssigned,
		Operator: "u1", CreatedAt: baseTime.Add(time.Minute),
	}))
	require.NoError(t, repo.Save(ctx, &model.StateHistoryModel{
		ID: "h1", TaskID: "t1", ToState: model.TaskStateDraft, Operator: "u1", CreatedAt: baseTime,
	}))
	assert.Error(t, repo.Save(ctx, &model.StateHistoryModel{ID: "h3", TaskID: "t1"}))

	histories, err := repo.FindByTaskID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, "h1", histories[0].ID)
	assert.Equal(t, model.TaskStateAssigned, histories[1].ToState)
}
