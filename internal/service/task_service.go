package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/repository"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	maxTaskNameLength = 255
	maxMessageLength  = 2000
)

// TaskService 任务服务接口
type TaskService interface {
	Create(ctx context.Context, req *CreateTaskRequest) (*TaskView, error)
	Get(ctx context.Context, id string) (*TaskView, error)
	List(ctx context.Context, filter *ListTasksFilter) ([]*TaskView, error)
	UpdateDraft(ctx context.Context, id string, req *UpdateTaskRequest) (*TaskView, error)
	Delete(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, message *string) (*TaskView, error)
	Fail(ctx context.Context, id string, message *string) (*TaskView, error)
	History(ctx context.Context, id string) ([]*model.StateHistoryModel, error)
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	TaskTypeID string `json:"taskTypeId" binding:"required"`
	TaskName   string `json:"taskName" binding:"required"`
}

// UpdateTaskRequest 更新草稿任务请求,未提供的字段保持不变
type UpdateTaskRequest struct {
	TaskTypeID *string `json:"taskTypeId"`
	TaskName   *string `json:"taskName"`
}

// ListTasksFilter 任务列表过滤条件
type ListTasksFilter struct {
	State      string
	AssigneeID string
	TaskTypeID string
}

type taskService struct {
	store  *Store
	logger logrus.FieldLogger
	now    Clock
}

// NewTaskService 创建任务服务
func NewTaskService(store *Store, logger logrus.FieldLogger, now Clock) TaskService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &taskService{store: store, logger: logger, now: clockOrDefault(now)}
}

// Create 创建草稿任务
func (s *taskService) Create(ctx context.Context, req *CreateTaskRequest) (*TaskView, error) {
	if req == nil {
		return nil, invalidInput("taskName", utils.ErrEmptyName)
	}
	name, err := utils.ValidateName(req.TaskName, 1, maxTaskNameLength)
	if err != nil {
		return nil, invalidInput("taskName", err)
	}
	typeID := strings.TrimSpace(req.TaskTypeID)
	if err := utils.ValidateID(typeID); err != nil {
		return nil, invalidInput("taskTypeId", err)
	}
	if _, err := s.store.TaskTypes.FindByID(ctx, typeID); err != nil {
		return nil, notFoundOr(err, ErrTaskTypeNotFound, typeID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task id: %w", err)
	}
	now := s.now()
	task := &model.TaskModel{
		ID:         id.String(),
		TaskTypeID: typeID,
		Name:       name,
		TaskData: model.TaskData{
			State:    model.TaskStateDraft,
			Machines: datatypes.JSONSlice[string]{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := task.Validate(); err != nil {
		return nil, invalidInput("task", err)
	}

	err = s.store.transaction(ctx, func(tx *Store) error {
		if err := tx.Tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return tx.recordTransition(ctx, &model.StateHistoryModel{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			ToState:   model.TaskStateDraft,
			Reason:    "created",
			Operator:  operatorFromContext(ctx),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	// 记录业务指标
	metrics.RecordTaskCreated(typeID)
	s.logger.WithFields(logrus.Fields{"task_id": task.ID, "task_type_id": typeID}).Info("task created")

	return s.store.resolveTask(ctx, task)
}

// Get 获取任务详情
func (s *taskService) Get(ctx context.Context, id string) (*TaskView, error) {
	task, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.resolveTask(ctx, task)
}

// List 按条件查询任务,按创建顺序返回
func (s *taskService) List(ctx context.Context, filter *ListTasksFilter) ([]*TaskView, error) {
	repoFilter := &repository.TaskFilter{}
	if filter != nil {
		if filter.State != "" {
			state := model.TaskState(filter.State)
			if !state.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidState, filter.State)
			}
			repoFilter.State = &state
		}
		if filter.AssigneeID != "" {
			repoFilter.AssigneeID = &filter.AssigneeID
		}
		if filter.TaskTypeID != "" {
			repoFilter.TaskTypeID = &filter.TaskTypeID
		}
	}

	tasks, err := s.store.Tasks.FindByFilter(ctx, repoFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return s.store.resolveTasks(ctx, tasks)
}

// UpdateDraft 修改草稿任务的名称或任务类型
func (s *taskService) UpdateDraft(ctx context.Context, id string, req *UpdateTaskRequest) (*TaskView, error) {
	updates := make(map[string]interface{})
	if req != nil && req.TaskName != nil {
		name, err := utils.ValidateName(*req.TaskName, 1, maxTaskNameLength)
		if err != nil {
			return nil, invalidInput("taskName", err)
		}
		updates["name"] = name
	}
	var typeID string
	if req != nil && req.TaskTypeID != nil {
		typeID = strings.TrimSpace(*req.TaskTypeID)
		if err := utils.ValidateID(typeID); err != nil {
			return nil, invalidInput("taskTypeId", err)
		}
		updates["task_type_id"] = typeID
	}

	var updated *model.TaskModel
	err := s.store.transaction(ctx, func(tx *Store) error {
		task, err := tx.Tasks.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, ErrTaskNotFound, id)
		}
		if task.TaskData.State != model.TaskStateDraft {
			return fmt.Errorf("%w: current state is %s", ErrTaskNotDraft, task.TaskData.State)
		}
		if typeID != "" {
			if _, err := tx.TaskTypes.FindByID(ctx, typeID); err != nil {
				return notFoundOr(err, ErrTaskTypeNotFound, typeID)
			}
		}
		if len(updates) > 0 {
			ok, err := tx.Tasks.UpdateIfState(ctx, id, model.TaskStateDraft, updates)
			if err != nil {
				return fmt.Errorf("failed to update task %s: %w", id, err)
			}
			if !ok {
				return ErrTaskNotDraft
			}
		}
		updated, err = tx.Tasks.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.store.resolveTask(ctx, updated)
}

// Delete 删除草稿任务
func (s *taskService) Delete(ctx context.Context, id string) error {
	err := s.store.transaction(ctx, func(tx *Store) error {
		task, err := tx.Tasks.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, ErrTaskNotFound, id)
		}
		if task.TaskData.State != model.TaskStateDraft {
			return fmt.Errorf("%w: current state is %s", ErrTaskNotDraft, task.TaskData.State)
		}
		ok, err := tx.Tasks.DeleteIfState(ctx, id, model.TaskStateDraft)
		if err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		if !ok {
			return ErrTaskNotDraft
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{"task_id": id, "operator": operatorFromContext(ctx)}).Info("draft task deleted")
	return nil
}

// Complete 结束进行中的任务,状态变为 success
func (s *taskService) Complete(ctx context.Context, id string, message *string) (*TaskView, error) {
	return s.finish(ctx, id, model.TaskStateSuccess, message)
}

// Fail 结束进行中的任务,状态变为 fail
func (s *taskService) Fail(ctx context.Context, id string, message *string) (*TaskView, error) {
	return s.finish(ctx, id, model.TaskStateFail, message)
}

// finish 结束任务并释放其占用的机器
func (s *taskService) finish(ctx context.Context, id string, to model.TaskState, message *string) (*TaskView, error) {
	updates := map[string]interface{}{
		"state":    to,
		"machines": datatypes.JSONSlice[string]{},
	}
	if message != nil {
		text := strings.TrimSpace(*message)
		if len([]rune(text)) > maxMessageLength {
			return nil, invalidInput("message", utils.ErrStringTooLong)
		}
		updates["message"] = text
	}

	var finished *model.TaskModel
	var released []string
	err := s.store.transaction(ctx, func(tx *Store) error {
		task, err := tx.Tasks.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, ErrTaskNotFound, id)
		}
		if err := authorizeTask(ctx, task); err != nil {
			return err
		}
		if task.TaskData.State != model.TaskStateInProgress {
			return fmt.Errorf("%w: current state is %s", ErrTaskNotInProgress, task.TaskData.State)
		}

		now := s.now()
		updates["end_time"] = now
		ok, err := tx.Tasks.UpdateIfState(ctx, id, model.TaskStateInProgress, updates)
		if err != nil {
			return fmt.Errorf("failed to finish task %s: %w", id, err)
		}
		if !ok {
			return ErrTaskNotInProgress
		}

		released, err = tx.Claims.ReleaseByTask(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to release machines of task %s: %w", id, err)
		}

		reason := "released machines: " + strings.Join(released, ",")
		if text, ok := updates["message"].(string); ok && text != "" {
			reason += "; " + text
		}
		if err := tx.recordTransition(ctx, &model.StateHistoryModel{
			ID:        uuid.NewString(),
			TaskID:    id,
			FromState: model.TaskStateInProgress,
			ToState:   to,
			Reason:    reason,
			Operator:  operatorFromContext(ctx),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		finished, err = tx.Tasks.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":  id,
		"state":    to,
		"released": released,
	}).Info("task finished")

	return s.store.resolveTask(ctx, finished)
}

// History 任务状态变更历史
func (s *taskService) History(ctx context.Context, id string) ([]*model.StateHistoryModel, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	histories, err := s.store.History.FindByTaskID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load task history: %w", err)
	}
	return histories, nil
}

func (s *taskService) find(ctx context.Context, id string) (*model.TaskModel, error) {
	task, err := s.store.Tasks.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, ErrTaskNotFound, id)
	}
	return task, nil
}
