package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config      *config.Config
	Logger      logrus.FieldLogger
	DB          *gorm.DB
	Redis       redis.UniversalClient // 可为 nil
	Tokens      *auth.TokenManager
	Auth        service.AuthService
	TaskTypes   service.TaskTypeService
	Machines    service.MachineService
	Users       service.UserService
	Tasks       service.TaskService
	Assignment  service.AssignmentService
	Scheduler   service.SchedulerService
	Loads       service.LoadService
	Statistics  service.StatisticsService
	PreviewMode service.PreviewMode
}

// SetupRoutes 配置路由
func SetupRoutes(deps *RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()

	// 中间件
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware())
	}
	router.Use(RequestIDMiddleware())
	router.Use(ErrorHandlerMiddleware(logger))
	router.Use(RequestLogMiddleware(logger))
	router.Use(SLAMonitorMiddleware(DefaultSLABudgets(), logger))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	router.NoRoute(NotFoundHandler)

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.Redis)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	authController := NewAuthController(deps.Auth)
	taskTypeController := NewTaskTypeController(deps.TaskTypes)
	machineController := NewMachineController(deps.Machines)
	userController := NewUserController(deps.Users, deps.Loads)
	taskController := NewTaskController(deps.Tasks, deps.Assignment, deps.Scheduler, deps.Loads, deps.PreviewMode)
	statisticsController := NewStatisticsController(deps.Statistics)

	managers := auth.RequireRoles(model.RoleAdmin, model.RoleLeader)
	adminOnly := auth.RequireRoles(model.RoleAdmin)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", authController.Login)

	secured := v1.Group("", auth.AuthMiddleware(deps.Tokens))
	{
		secured.GET("/auth/me", authController.Me)

		// 任务类型
		taskTypes := secured.Group("/task-types")
		{
			taskTypes.GET("", taskTypeController.List)
			taskTypes.GET("/:id", taskTypeController.Get)
			taskTypes.POST("", managers, taskTypeController.Create)
			taskTypes.PUT("/:id", managers, taskTypeController.Update)
			taskTypes.DELETE("/:id", managers, taskTypeController.Delete)
		}

		// 机器
		machines := secured.Group("/machines")
		{
			machines.GET("", machineController.List)
			machines.GET("/:id", machineController.Get)
			machines.POST("", managers, machineController.Create)
			machines.PUT("/:id", managers, machineController.Update)
			machines.DELETE("/:id", managers, machineController.Delete)
		}

		// 用户
		users := secured.Group("/users")
		{
			users.GET("/with-tasks", managers, userController.WithTasks)
			users.GET("/with-tasks/:id", managers, userController.WithTasks)
			users.POST("/:id/task-types", managers, userController.AddTaskType)
			users.DELETE("/:id/task-types", managers, userController.RemoveTaskType)

			users.POST("", adminOnly, userController.Create)
			users.GET("", adminOnly, userController.List)
			users.GET("/:id", adminOnly, userController.Get)
			users.PUT("/:id", adminOnly, userController.Update)
			users.DELETE("/:id", adminOnly, userController.Delete)
		}

		// 任务
		tasks := secured.Group("/tasks")
		{
			tasks.GET("", taskController.List)
			tasks.GET("/load", taskController.Load)
			tasks.GET("/load/:workerId", taskController.Load)
			tasks.GET("/week-load/:workerId", taskController.WeekLoad)
			tasks.PATCH("/start-next", taskController.StartNext)
			tasks.POST("/auto-assign-preview", managers, taskController.Preview)
			tasks.PATCH("/auto-assign-confirm", managers, taskController.Confirm)
			tasks.POST("", managers, taskController.Create)

			tasks.GET("/:id", taskController.Get)
			tasks.GET("/:id/history", taskController.History)
			tasks.PUT("/:id", managers, taskController.Update)
			tasks.DELETE("/:id", managers, taskController.Delete)
			tasks.PATCH("/:id/complete", taskController.Complete)
			tasks.PATCH("/:id/fail", taskController.Fail)
		}

		secured.GET("/statistics", managers, statisticsController.Summary)
	}

	return router
}
