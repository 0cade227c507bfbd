package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskTypeService 任务类型服务接口
type TaskTypeService interface {
	Create(ctx context.Context, req *TaskTypeRequest) (*model.TaskTypeModel, error)
	List(ctx context.Context) ([]*model.TaskTypeModel, error)
	Get(ctx context.Context, id string) (*model.TaskTypeModel, error)
	Update(ctx context.Context, id string, req *TaskTypeRequest) (*model.TaskTypeModel, error)
	Delete(ctx context.Context, id string) error
}

// TaskTypeRequest 创建或更新任务类型请求,更新时未提供的字段保持不变
type TaskTypeRequest struct {
	TaskName     *string `json:"taskName"`
	MachineCount *int    `json:"machineCount"`
	Color        *string `json:"color"`
}

type taskTypeService struct {
	store  *Store
	logger logrus.FieldLogger
	now    Clock
}

// NewTaskTypeService 创建任务类型服务
func NewTaskTypeService(store *Store, logger logrus.FieldLogger, now Clock) TaskTypeService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &taskTypeService{store: store, logger: logger, now: clockOrDefault(now)}
}

// apply 校验请求并写入模型
func (r *TaskTypeRequest) apply(m *model.TaskTypeModel) error {
	if r.TaskName != nil {
		name, err := utils.ValidateName(*r.TaskName, 2, 50)
		if err != nil {
			return invalidInput("taskName", err)
		}
		m.Name = name
	}
	if r.MachineCount != nil {
		if *r.MachineCount < 1 || *r.MachineCount > 20 {
			return fmt.Errorf("%w: got %d", ErrInvalidMachineCnt, *r.MachineCount)
		}
		m.MachineCount = *r.MachineCount
	}
	if r.Color != nil {
		color := strings.TrimSpace(*r.Color)
		if len(color) > 32 {
			return invalidInput("color", utils.ErrStringTooLong)
		}
		m.Color = color
	}
	return nil
}

// Create 创建任务类型
func (s *taskTypeService) Create(ctx context.Context, req *TaskTypeRequest) (*model.TaskTypeModel, error) {
	if req == nil || req.TaskName == nil {
		return nil, invalidInput("taskName", utils.ErrEmptyName)
	}
	if req.MachineCount == nil {
		return nil, fmt.Errorf("%w: machineCount is required", ErrInvalidMachineCnt)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task type id: %w", err)
	}
	now := s.now()
	taskType := &model.TaskTypeModel{ID: id.String(), CreatedAt: now, UpdatedAt: now}
	if err := req.apply(taskType); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, taskType.Name, ""); err != nil {
		return nil, err
	}

	if err := s.store.TaskTypes.Create(ctx, taskType); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, taskType.Name)
		}
		return nil, fmt.Errorf("failed to create task type: %w", err)
	}

	metrics.RecordCatalogOperation("task_type", "create")
	s.logger.WithFields(logrus.Fields{"task_type_id": taskType.ID, "name": taskType.Name}).Info("task type created")
	return taskType, nil
}

// List 查询全部任务类型
func (s *taskTypeService) List(ctx context.Context) ([]*model.TaskTypeModel, error) {
	taskTypes, err := s.store.TaskTypes.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list task types: %w", err)
	}
	return taskTypes, nil
}

// Get 获取任务类型
func (s *taskTypeService) Get(ctx context.Context, id string) (*model.TaskTypeModel, error) {
	taskType, err := s.store.TaskTypes.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, ErrTaskTypeNotFound, id)
	}
	return taskType, nil
}

// Update 更新任务类型
func (s *taskTypeService) Update(ctx context.Context, id string, req *TaskTypeRequest) (*model.TaskTypeModel, error) {
	taskType, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return taskType, nil
	}
	if err := req.apply(taskType); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, taskType.Name, taskType.ID); err != nil {
		return nil, err
	}

	taskType.UpdatedAt = s.now()
	if err := s.store.TaskTypes.Save(ctx, taskType); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, taskType.Name)
		}
		return nil, fmt.Errorf("failed to update task type: %w", err)
	}

	metrics.RecordCatalogOperation("task_type", "update")
	return taskType, nil
}

// Delete 删除任务类型,仍被机器、用户技能或任务引用时拒绝
func (s *taskTypeService) Delete(ctx context.Context, id string) error {
	err := s.store.transaction(ctx, func(tx *Store) error {
		if _, err := tx.TaskTypes.FindByID(ctx, id); err != nil {
			return notFoundOr(err, ErrTaskTypeNotFound, id)
		}

		machines, err := tx.Machines.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load machines: %w", err)
		}
		for _, machine := range machines {
			if machine.Supports(id) {
				return fmt.Errorf("%w: supported by machine %s", ErrTaskTypeInUse, machine.Name)
			}
		}

		users, err := tx.Users.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load users: %w", err)
		}
		for _, user := range users {
			if user.HasSkill(id) {
				return fmt.Errorf("%w: skill of user %s", ErrTaskTypeInUse, user.Name)
			}
		}

		tasks, err := tx.Tasks.CountByTaskType(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}
		if tasks > 0 {
			return fmt.Errorf("%w: %d task(s)", ErrTaskTypeInUse, tasks)
		}

		if err := tx.TaskTypes.Delete(ctx, id); err != nil {
			return notFoundOr(err, ErrTaskTypeNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RecordCatalogOperation("task_type", "delete")
	s.logger.WithField("task_type_id", id).Info("task type deleted")
	return nil
}

// ensureUniqueName 名称已被其他任务类型使用时返回 ErrDuplicateName
func (s *taskTypeService) ensureUniqueName(ctx context.Context, name, selfID string) error {
	all, err := s.store.TaskTypes.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load task types: %w", err)
	}
	for _, other := range all {
		if other.Name == name && other.ID != selfID {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}
