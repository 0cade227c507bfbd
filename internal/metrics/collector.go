package metrics

import (
	"context"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collector 指标收集器
// 定期从数据库推导任务状态分布和机器占用情况
type Collector struct {
	db       *gorm.DB
	tasks    repository.TaskRepository
	machines repository.MachineRepository
	logger   logrus.FieldLogger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		tasks:    repository.NewTaskRepository(db),
		machines: repository.NewMachineRepository(db),
		logger:   logger,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	c.CollectOnce(c.ctx)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce(c.ctx)
		}
	}
}

// CollectOnce 执行一次采集
func (c *Collector) CollectOnce(ctx context.Context) {
	// 更新数据库连接数指标
	_ = UpdateDatabaseConnections(c.db)

	counts, err := c.tasks.CountByState(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to collect task state metrics")
	} else {
		for _, state := range model.AllTaskStates {
			UpdateTasksByState(string(state), float64(counts[state]))
		}
	}

	total, err := c.machines.Count(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to count machines")
		return
	}
	busy, err := c.tasks.BusyMachines(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to collect machine status metrics")
		return
	}
	inUse := int64(len(busy))
	if inUse > total {
		inUse = total
	}
	UpdateMachinesByStatus(string(model.MachineStatusInUse), float64(inUse))
	UpdateMachinesByStatus(string(model.MachineStatusIdle), float64(total-inUse))
}
