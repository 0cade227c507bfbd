package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/database"
	"github.com/mautops/labtask-gin/internal/lock"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeClock 每次读取前进一秒,保证创建顺序与调用顺序一致
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// 2024-03-06 为周三
var wednesday = time.Date(2024, 3, 6, 10, 0, 0, 0, time.Local)

type testEnv struct {
	db         *gorm.DB
	store      *service.Store
	clock      *fakeClock
	logs       *test.Hook
	tasks      service.TaskService
	taskTypes  service.TaskTypeService
	machines   service.MachineService
	users      service.UserService
	loads      service.LoadService
	assignment service.AssignmentService
	scheduler  service.SchedulerService
	stats      service.StatisticsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, database.Migrate(db))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clock := &fakeClock{now: wednesday}
	store := service.NewStore(db)
	loads := service.NewLoadService(store, logger, clock.Now)
	return &testEnv{
		db:         db,
		store:      store,
		clock:      clock,
		logs:       hook,
		tasks:      service.NewTaskService(store, logger, clock.Now),
		taskTypes:  service.NewTaskTypeService(store, logger, clock.Now),
		machines:   service.NewMachineService(store, logger, clock.Now),
		users:      service.NewUserService(store, logger, clock.Now),
		loads:      loads,
		assignment: service.NewAssignmentService(store, loads, logger, clock.Now),
		scheduler:  service.NewSchedulerService(store, lock.NewLocalLocker(), logger, clock.Now),
		stats:      service.NewStatisticsService(store),
	}
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) taskType(t *testing.T, name string, machineCount int) *model.TaskTypeModel {
	t.Helper()
	tt, err := e.taskTypes.Create(context.Background(), &service.TaskTypeRequest{
		TaskName:     ptr(name),
		MachineCount: ptr(machineCount),
	})
	require.NoError(t, err)
	return tt
}

func (e *testEnv) machine(t *testing.T, name string, typeIDs ...string) *service.MachineView {
	t.Helper()
	m, err := e.machines.Create(context.Background(), &service.MachineRequest{
		MachineName:      ptr(name),
		MachineTaskTypes: ptr(typeIDs),
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) user(t *testing.T, name string, role model.Role, skills ...string) *model.UserModel {
	t.Helper()
	u, err := e.users.Create(context.Background(), &service.CreateUserRequest{
		UserName:      name,
		Password:      "secret123",
		UserRole:      string(role),
		UserTaskTypes: skills,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) draft(t *testing.T, name, typeID string) *service.TaskView {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), &service.CreateTaskRequest{TaskTypeID: typeID, TaskName: name})
	require.NoError(t, err)
	return task
}

// assign 将草稿任务直接确认给作业员
func (e *testEnv) assign(t *testing.T, assignerID string, pairs ...string) {
	t.Helper()
	req := &service.ConfirmRequest{AssignerID: assignerID}
	for i := 0; i+1 < len(pairs); i += 2 {
		req.Assignments = append(req.Assignments, service.AssignmentItem{TaskID: pairs[i], AssigneeID: pairs[i+1]})
	}
	result, err := e.assignment.Confirm(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, len(req.Assignments), result.Assigned, "results: %+v", result.Results)
}

func (e *testEnv) state(t *testing.T, taskID string) model.TaskState {
	t.Helper()
	task, err := e.store.Tasks.FindByID(context.Background(), taskID)
	require.NoError(t, err)
	return task.TaskData.State
}
