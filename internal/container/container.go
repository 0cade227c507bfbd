package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/api"
	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/database"
	"github.com/mautops/labtask-gin/internal/lock"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、调度锁、服务等
type Container struct {
	config *config.Config
	logger *logrus.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	locker lock.Locker
	tokens *auth.TokenManager
	store  *service.Store

	previewMode service.PreviewMode

	auth       service.AuthService
	taskTypes  service.TaskTypeService
	machines   service.MachineService
	users      service.UserService
	tasks      service.TaskService
	loads      service.LoadService
	assignment service.AssignmentService
	scheduler  service.SchedulerService
	statistics service.StatisticsService
}

// Option 容器可选项
type Option func(*Container)

// WithDB 使用已有的数据库连接(测试使用)
func WithDB(db *gorm.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithLogger 使用指定的日志器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	// 1. 日志
	if c.logger == nil {
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}

	// 2. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	if c.db == nil {
		db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second, database.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.db = db
	}
	if err := database.Migrate(c.db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 调度锁
	switch cfg.Scheduler.LockBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := lock.NewRedisClient(ctx, cfg.Redis)
		cancel()
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		c.redis = client
		c.locker = lock.NewRedisLocker(client,
			time.Duration(cfg.Scheduler.LockTTLMs)*time.Millisecond,
			time.Duration(cfg.Scheduler.LockWaitMs)*time.Millisecond,
			c.logger.WithField("component", "lock"))
	default:
		c.locker = lock.NewLocalLocker()
	}

	// 4. 服务
	previewMode, err := service.ParsePreviewMode(cfg.Scheduler.PreviewMode, service.PreviewCurrent)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.previewMode = previewMode

	c.tokens = auth.NewTokenManager(cfg.JWT)
	c.store = service.NewStore(c.db).WithPublisher(metrics.TransitionRecorder{})
	c.auth = service.NewAuthService(c.store, c.tokens, c.logger)
	c.taskTypes = service.NewTaskTypeService(c.store, c.logger, nil)
	c.machines = service.NewMachineService(c.store, c.logger, nil)
	c.users = service.NewUserService(c.store, c.logger, nil)
	c.tasks = service.NewTaskService(c.store, c.logger, nil)
	c.loads = service.NewLoadService(c.store, c.logger, nil)
	c.assignment = service.NewAssignmentService(c.store, c.loads, c.logger, nil)
	c.scheduler = service.NewSchedulerService(c.store, c.locker, c.logger, nil)
	c.statistics = service.NewStatisticsService(c.store)

	return c, nil
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	return api.SetupRoutes(&api.RouterDeps{
		Config:      c.config,
		Logger:      c.logger,
		DB:          c.db,
		Redis:       c.redis,
		Tokens:      c.tokens,
		Auth:        c.auth,
		TaskTypes:   c.taskTypes,
		Machines:    c.machines,
		Users:       c.users,
		Tasks:       c.tasks,
		Assignment:  c.assignment,
		Scheduler:   c.scheduler,
		Loads:       c.loads,
		Statistics:  c.statistics,
		PreviewMode: c.previewMode,
	})
}

// Logger 获取日志器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// TaskTypes 获取任务类型服务
func (c *Container) TaskTypes() service.TaskTypeService {
	return c.taskTypes
}

// Machines 获取机器服务
func (c *Container) Machines() service.MachineService {
	return c.machines
}

// Users 获取用户服务
func (c *Container) Users() service.UserService {
	return c.users
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
