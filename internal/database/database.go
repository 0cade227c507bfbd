package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// BuildSQLiteDSN 构建 SQLite DSN,开启外键和忙等待
func BuildSQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// poolConfigFrom 从配置读取连接池参数,未设置的项使用默认值
func poolConfigFrom(cfg config.DatabaseConfig) *PoolConfig {
	pool := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	return pool
}

// Option 连接可选项
type Option func(*gorm.Config)

// WithLogger SQL 日志写入指定的 logrus 日志器
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *gorm.Config) {
		c.Logger = NewGormLogger(log)
	}
}

// gormWriter 把 gorm 日志转给 logrus
type gormWriter struct {
	log logrus.FieldLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// NewGormLogger 只输出慢查询和失败的 SQL,记录不存在属于正常业务分支,不输出
func NewGormLogger(log logrus.FieldLogger) logger.Interface {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return logger.New(gormWriter{log: log.WithField("component", "gorm")}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig, opts ...Option) (*gorm.DB, error) {
	var dialector gorm.Dialector
	pool := poolConfigFrom(cfg)

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(BuildSQLiteDSN(cfg.Path))
		// SQLite 只允许单写者,串行化连接避免 database is locked
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	case "postgres", "":
		dialector = postgres.Open(BuildDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(nil),
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.TaskTypeModel{},
		&model.MachineModel{},
		&model.UserModel{},
		&model.TaskModel{},
		&model.MachineClaimModel{},
		&model.StateHistoryModel{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// CreateIndexes 创建 AutoMigrate 无法表达的索引
func CreateIndexes(db *gorm.DB) error {
	// 每个作业员最多只有一个进行中的任务(部分唯一索引,PostgreSQL 和 SQLite 均支持)
	if err := db.Exec(fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_tasks_one_in_progress ON tasks(assignee_id) WHERE state = '%s'",
		model.TaskStateInProgress,
	)).Error; err != nil {
		return fmt.Errorf("failed to create ux_tasks_one_in_progress: %w", err)
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_created_order ON tasks(created_at, id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_tasks_created_order: %w", err)
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_history_task_created ON state_history(task_id, created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_history_task_created: %w", err)
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration, opts ...Option) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg, opts...)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试，等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database is not configured")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
