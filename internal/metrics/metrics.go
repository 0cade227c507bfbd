package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/mautops/labtask-gin/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务创建数
	tasksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_tasks_created_total",
			Help: "Number of new tasks created",
		},
		[]string{"task_type_id"},
	)

	// 任务状态变更数
	taskStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_tasks_state_changed_total",
			Help: "Number of task state transitions",
		},
		[]string{"previous_state", "new_state"},
	)

	// 自动分配耗时
	assignmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "app_task_assignment_duration_seconds",
			Help:    "Time taken for auto-assign preview and confirm operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation_type"},
	)

	// 启动下一个任务的尝试次数
	startNextAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_task_start_next_attempts_total",
			Help: "Number of attempts to start the next task for a worker",
		},
		[]string{"status"},
	)

	// 登录结果
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_user_logins_total",
			Help: "Total successful user logins",
		},
		[]string{"role"},
	)

	loginFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_user_login_failures_total",
			Help: "Total failed user login attempts",
		},
		[]string{"reason"},
	)

	// 目录管理操作(任务类型、机器、用户)
	catalogOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_catalog_operations_total",
			Help: "Count of task type, machine and user management actions",
		},
		[]string{"resource", "operation"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 任务状态分布
	tasksByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_tasks_current_state",
			Help: "Number of tasks currently in each state",
		},
		[]string{"state"},
	)

	// 机器状态分布
	machinesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_machines_status",
			Help: "Current number of machines by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(tasksCreatedTotal)
	prometheus.MustRegister(taskStateChangesTotal)
	prometheus.MustRegister(assignmentDuration)
	prometheus.MustRegister(startNextAttemptsTotal)
	prometheus.MustRegister(loginsTotal)
	prometheus.MustRegister(loginFailuresTotal)
	prometheus.MustRegister(catalogOperationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(tasksByState)
	prometheus.MustRegister(machinesByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		// 尝试注册 Go 运行时指标，如果已注册则忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated(taskTypeID string) {
	tasksCreatedTotal.WithLabelValues(taskTypeID).Inc()
}

// RecordStateChange 记录任务状态变更
func RecordStateChange(from, to string) {
	taskStateChangesTotal.WithLabelValues(from, to).Inc()
}

// ObserveAssignment 记录自动分配操作耗时,operation 为 preview 或 confirm
func ObserveAssignment(operation string, seconds float64) {
	assignmentDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordStartNext 记录启动下一个任务的结果
func RecordStartNext(status string) {
	startNextAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordLogin 记录登录结果,成功时 reason 为空
func RecordLogin(role, reason string) {
	if reason == "" {
		loginsTotal.WithLabelValues(role).Inc()
		return
	}
	loginFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordCatalogOperation 记录目录管理操作
func RecordCatalogOperation(resource, operation string) {
	catalogOperationsTotal.WithLabelValues(resource, operation).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTasksByState 更新任务状态分布指标
func UpdateTasksByState(state string, count float64) {
	tasksByState.WithLabelValues(state).Set(count)
}

// UpdateMachinesByStatus 更新机器状态分布指标
func UpdateMachinesByStatus(status string, count float64) {
	machinesByStatus.WithLabelValues(status).Set(count)
}

// TransitionRecorder 将已提交的状态变更计入 app_tasks_state_changed_total
// 创建记录(无来源状态)由 app_tasks_created_total 统计
type TransitionRecorder struct{}

// Publish 记录一次状态变更
func (TransitionRecorder) Publish(history *model.StateHistoryModel) {
	if history == nil || history.FromState == "" {
		return
	}
	RecordStateChange(string(history.FromState), string(history.ToState))
}
