package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/api"
	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/database"
	"github.com/mautops/labtask-gin/internal/lock"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	users  service.UserService
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.RateLimit.RPS = 0
	for _, m := range mutate {
		m(cfg)
	}

	db, err := database.Connect(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, database.Migrate(db))

	logger, _ := test.NewNullLogger()
	store := service.NewStore(db)
	tokens := auth.NewTokenManager(cfg.JWT)
	loads := service.NewLoadService(store, logger, nil)
	users := service.NewUserService(store, logger, nil)

	router := api.SetupRoutes(&api.RouterDeps{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Tokens:      tokens,
		Auth:        service.NewAuthService(store, tokens, logger),
		TaskTypes:   service.NewTaskTypeService(store, logger, nil),
		Machines:    service.NewMachineService(store, logger, nil),
		Users:       users,
		Tasks:       service.NewTaskService(store, logger, nil),
		Assignment:  service.NewAssignmentService(store, loads, logger, nil),
		Scheduler:   service.NewSchedulerService(store, lock.NewLocalLocker(), logger, nil),
		Loads:       loads,
		Statistics:  service.NewStatisticsService(store),
		PreviewMode: service.PreviewCurrent,
	})
	return &testServer{router: router, users: users}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

// ok 断言成功响应并解析 data
func (s *testServer) ok(t *testing.T, status int, method, path, token string, body, out interface{}) {
	t.Helper()
	w, env := s.do(t, method, path, token, body)
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, 0, env.Code)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func (s *testServer) seedUser(t *testing.T, name string, role model.Role, skills ...string) *model.UserModel {
	t.Helper()
	u, err := s.users.Create(context.Background(), &service.CreateUserRequest{
		UserName:      name,
		Password:      "secret123",
		UserRole:      string(role),
		UserTaskTypes: skills,
	})
	require.NoError(t, err)
	return u
}

func (s *testServer) login(t *testing.T, name string) string {
	t.Helper()
	var result struct {
		Token string `json:"token"`
	}
	s.ok(t, http.StatusOK, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"userName": name, "password": "secret123"}, &result)
	require.NotEmpty(t, result.Token)
	return result.Token
}

// TestLogin 测试登录和当前用户
func TestLogin(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "alice", model.RoleAdmin)

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"userName": "alice", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Reason)

	token := s.login(t, "alice")
	var me auth.Identity
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/auth/me", token, nil, &me)
	assert.Equal(t, model.RoleAdmin, me.Role)
}

// TestRoleGuards 测试认证和角色校验
func TestRoleGuards(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "lead", model.RoleLeader)
	s.seedUser(t, "bob", model.RoleWorker)
	leader := s.login(t, "lead")
	worker := s.login(t, "bob")

	w, env := s.do(t, http.MethodGet, "/api/v1/task-types", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_TOKEN", env.Reason)

	w, env = s.do(t, http.MethodPost, "/api/v1/task-types", worker, map[string]interface{}{"taskName": "Stress", "machineCount": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ROLE_NOT_ALLOWED", env.Reason)

	// 用户管理只对管理员开放
	w, _ = s.do(t, http.MethodGet, "/api/v1/users", leader, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.ok(t, http.StatusCreated, http.MethodPost, "/api/v1/task-types", leader, map[string]interface{}{"taskName": "Stress", "machineCount": 1}, nil)

	var taskTypes []model.TaskTypeModel
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/task-types", worker, nil, &taskTypes)
	assert.Len(t, taskTypes, 1)
}

// TestErrorMapping 测试业务错误到 HTTP 状态码的映射
func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "lead", model.RoleLeader)
	token := s.login(t, "lead")

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
		reason string
	}{
		{"not found", http.MethodGet, "/api/v1/tasks/missing-task", nil, http.StatusNotFound, "not_found", "TASK_NOT_FOUND"},
		{"malformed json", http.MethodPost, "/api/v1/tasks", "{", http.StatusBadRequest, "validation", "INVALID_REQUEST"},
		{"bad preview mode", http.MethodPost, "/api/v1/tasks/auto-assign-preview?mode=monthly", nil, http.StatusBadRequest, "validation", "INVALID_PREVIEW_MODE"},
		{"empty confirm", http.MethodPatch, "/api/v1/tasks/auto-assign-confirm", map[string]interface{}{"assignments": []interface{}{}}, http.StatusBadRequest, "validation", "EMPTY_ASSIGNMENTS"},
		{"bad machine count", http.MethodPost, "/api/v1/task-types", map[string]interface{}{"taskName": "Stress", "machineCount": 0}, http.StatusBadRequest, "validation", "INVALID_MACHINE_COUNT"},
		{"bad machine status", http.MethodGet, "/api/v1/machines?status=broken", nil, http.StatusBadRequest, "validation", ""},
		{"unknown route", http.MethodGet, "/api/v1/nothing-here", nil, http.StatusNotFound, "not_found", "ROUTE_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := s.do(t, tc.method, tc.path, token, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.status, env.Code)
			assert.Equal(t, tc.kind, env.Message)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, env.Reason)
			}
		})
	}
}

type taskView struct {
	ID       string          `json:"id"`
	State    model.TaskState `json:"state"`
	Message  string          `json:"message"`
	Assignee *struct {
		ID string `json:"id"`
	} `json:"assignee"`
	Machines []struct {
		ID          string `json:"id"`
		MachineName string `json:"machineName"`
	} `json:"machine"`
}

type machineView struct {
	ID            string `json:"id"`
	MachineName   string `json:"machineName"`
	Status        string `json:"status"`
	CurrentTaskID string `json:"currentTaskId"`
}

// TestWorkflow 测试从建档到完成的完整流程
func TestWorkflow(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "admin", model.RoleAdmin)
	admin := s.login(t, "admin")

	var stress model.TaskTypeModel
	s.ok(t, http.StatusCreated, http.MethodPost, "/api/v1/task-types", admin,
		map[string]interface{}{"taskName": "Stress", "machineCount": 2}, &stress)

	for _, name := range []string{"M1", "M2", "M3"} {
		s.ok(t, http.StatusCreated, http.MethodPost, "/api/v1/machines", admin,
			map[string]interface{}{"machineName": name, "machineTaskTypes": []string{stress.ID}}, nil)
	}

	var bob model.UserModel
	s.ok(t, http.StatusCreated, http.MethodPost, "/api/v1/users", admin,
		map[string]interface{}{"userName": "bob", "password": "secret123", "userRole": "worker"}, &bob)
	s.ok(t, http.StatusOK, http.MethodPost, "/api/v1/users/"+bob.ID+"/task-types", admin,
		map[string]string{"taskTypeId": stress.ID}, nil)
	worker := s.login(t, "bob")

	var draft taskView
	s.ok(t, http.StatusCreated, http.MethodPost, "/api/v1/tasks", admin,
		map[string]string{"taskTypeId": stress.ID, "taskName": "T1"}, &draft)
	assert.Equal(t, model.TaskStateDraft, draft.State)

	var preview []service.PreviewEntry
	s.ok(t, http.StatusOK, http.MethodPost, "/api/v1/tasks/auto-assign-preview", admin, nil, &preview)
	require.Len(t, preview, 1)
	assert.Equal(t, bob.ID, preview[0].PreviewAssignee.ID)

	var confirm service.ConfirmResult
	s.ok(t, http.StatusOK, http.MethodPatch, "/api/v1/tasks/auto-assign-confirm", admin, map[string]interface{}{
		"assignments": []map[string]string{{"taskId": draft.ID, "assigneeId": preview[0].PreviewAssignee.ID}},
	}, &confirm)
	assert.Equal(t, 1, confirm.Assigned)

	var started taskView
	s.ok(t, http.StatusOK, http.MethodPatch, "/api/v1/tasks/start-next", worker, nil, &started)
	assert.Equal(t, draft.ID, started.ID)
	assert.Equal(t, model.TaskStateInProgress, started.State)
	require.Len(t, started.Machines, 2)
	assert.Equal(t, "M1", started.Machines[0].MachineName)
	assert.Equal(t, "M2", started.Machines[1].MachineName)

	var inUse []machineView
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/machines?status=in-use", worker, nil, &inUse)
	require.Len(t, inUse, 2)
	assert.Equal(t, draft.ID, inUse[0].CurrentTaskID)

	// 进行中的机器不能删除
	w, env := s.do(t, http.MethodDelete, "/api/v1/machines/"+inUse[0].ID, admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "MACHINE_IN_USE", env.Reason)

	// 作业员没有其他任务可启动
	w, env = s.do(t, http.MethodPatch, "/api/v1/tasks/start-next", worker, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WORKER_BUSY", env.Reason)

	var done taskView
	s.ok(t, http.StatusOK, http.MethodPatch, "/api/v1/tasks/"+draft.ID+"/complete", worker,
		map[string]string{"message": "all green"}, &done)
	assert.Equal(t, model.TaskStateSuccess, done.State)

	var idle []machineView
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/machines?status=idle", worker, nil, &idle)
	assert.Len(t, idle, 3)

	// 终态任务不能再次结束
	w, env = s.do(t, http.MethodPatch, "/api/v1/tasks/"+draft.ID+"/fail", worker, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TASK_NOT_IN_PROGRESS", env.Reason)

	var history []model.StateHistoryModel
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/tasks/"+draft.ID+"/history", worker, nil, &history)
	assert.Len(t, history, 4)

	var week service.WeeklyLoad
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/tasks/week-load/"+bob.ID, worker, nil, &week)
	assert.Equal(t, 1, week.Count)

	var summary struct {
		Completion service.CompletionStatistics `json:"completion"`
	}
	s.ok(t, http.StatusOK, http.MethodGet, "/api/v1/statistics", admin, nil, &summary)
	assert.Equal(t, int64(1), summary.Completion.SuccessCount)
}

// TestStartNext_WorkerActsForSelfOnly 测试作业员不能替他人启动任务
func TestStartNext_WorkerActsForSelfOnly(t *testing.T) {
	s := newTestServer(t)
	s.seedUser(t, "bob", model.RoleWorker)
	carol := s.seedUser(t, "carol", model.RoleWorker)
	token := s.login(t, "bob")

	w, env := s.do(t, http.MethodPatch, "/api/v1/tasks/start-next", token, map[string]string{"workerId": carol.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", env.Message)

	w, env = s.do(t, http.MethodPatch, "/api/v1/tasks/start-next", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ASSIGNED_TASKS", env.Reason)
}

// TestMiddleware 测试请求 ID、安全头和 CORS
func TestMiddleware(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["database"])
	assert.Equal(t, "not configured", health.Checks["redis"])

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "http://example.com")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api_requests_total")
}

// TestRateLimit 测试超出限流返回 429
func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RPS = 0.001
		cfg.RateLimit.Burst = 1
	})

	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Reason)
}

// TestTracingMiddleware 测试启用追踪时请求正常处理
func TestTracingMiddleware(t *testing.T) {
	shutdown, err := api.InitTracing(config.TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Tracing.Enabled = true
	})
	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
