package service

import (
	"context"
	"time"

	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/repository"
	"gorm.io/gorm"
)

// Clock 当前时间来源
type Clock func() time.Time

// systemOperator 无认证上下文(命令行、后台任务)时记录的操作者
const systemOperator = "system"

// TransitionPublisher 接收已提交的任务状态变更
// Publish 不得阻塞调用方
type TransitionPublisher interface {
	Publish(history *model.StateHistoryModel)
}

// Store 服务层使用的仓储集合
type Store struct {
	DB        *gorm.DB
	Tasks     repository.TaskRepository
	TaskTypes repository.TaskTypeRepository
	Machines  repository.MachineRepository
	Users     repository.UserRepository
	Claims    repository.MachineClaimRepository
	History   repository.StateHistoryRepository

	publisher TransitionPublisher
	pending   *[]*model.StateHistoryModel // 事务内尚未提交的状态变更
}

// NewStore 基于数据库连接创建仓储集合
func NewStore(db *gorm.DB) *Store {
	return &Store{
		DB:        db,
		Tasks:     repository.NewTaskRepository(db),
		TaskTypes: repository.NewTaskTypeRepository(db),
		Machines:  repository.NewMachineRepository(db),
		Users:     repository.NewUserRepository(db),
		Claims:    repository.NewMachineClaimRepository(db),
		History:   repository.NewStateHistoryRepository(db),
	}
}

// WithPublisher 设置状态变更的发布目标
func (s *Store) WithPublisher(publisher TransitionPublisher) *Store {
	s.publisher = publisher
	return s
}

// withTx 返回绑定到事务的仓储集合
func (s *Store) withTx(tx *gorm.DB, pending *[]*model.StateHistoryModel) *Store {
	return &Store{
		DB:        tx,
		Tasks:     s.Tasks.WithTx(tx),
		TaskTypes: s.TaskTypes.WithTx(tx),
		Machines:  s.Machines.WithTx(tx),
		Users:     s.Users.WithTx(tx),
		Claims:    s.Claims.WithTx(tx),
		History:   s.History.WithTx(tx),
		publisher: s.publisher,
		pending:   pending,
	}
}

// transaction 在事务中执行 fn,事务内的读写都必须使用传入的 Store
// 事务提交后才发布其中记录的状态变更
func (s *Store) transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.pending != nil {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(s.withTx(tx, s.pending))
		})
	}

	var pending []*model.StateHistoryModel
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx, &pending))
	})
	if err != nil {
		return err
	}
	for _, history := range pending {
		s.publish(history)
	}
	return nil
}

// recordTransition 保存状态变更历史
func (s *Store) recordTransition(ctx context.Context, history *model.StateHistoryModel) error {
	if err := s.History.Save(ctx, history); err != nil {
		return err
	}
	if s.pending != nil {
		*s.pending = append(*s.pending, history)
	} else {
		s.publish(history)
	}
	return nil
}

func (s *Store) publish(history *model.StateHistoryModel) {
	if s.publisher != nil {
		s.publisher.Publish(history)
	}
}

func clockOrDefault(now Clock) Clock {
	if now == nil {
		return time.Now
	}
	return now
}

// operatorFromContext 返回当前操作者 ID
func operatorFromContext(ctx context.Context) string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return id
	}
	return systemOperator
}
