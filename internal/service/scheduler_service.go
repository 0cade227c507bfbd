package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/lock"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MachinePoolLockKey 调度决策共用的锁
const MachinePoolLockKey = "scheduler:machine-pool"

// SchedulerService 机器调度服务接口
type SchedulerService interface {
	StartNext(ctx context.Context, workerID string) (*TaskView, error)
}

type schedulerService struct {
	store  *Store
	locker lock.Locker
	logger logrus.FieldLogger
	now    Clock
}

// NewSchedulerService 创建机器调度服务
func NewSchedulerService(store *Store, locker lock.Locker, logger logrus.FieldLogger, now Clock) SchedulerService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &schedulerService{store: store, locker: locker, logger: logger, now: clockOrDefault(now)}
}

// candidate 可启动的任务及其所需机器数
type candidate struct {
	task     *model.TaskModel
	required int
}

// StartNext 为作业员启动一个已分配任务并占用机器
// 所需机器数多的任务优先,每次调用只启动一个任务
func (s *schedulerService) StartNext(ctx context.Context, workerID string) (view *TaskView, err error) {
	workerID = strings.TrimSpace(workerID)
	defer func() { metrics.RecordStartNext(startNextStatus(err)) }()

	if err := utils.ValidateID(workerID); err != nil {
		return nil, invalidInput("workerId", err)
	}
	worker, err := s.store.Users.FindByID(ctx, workerID)
	if err != nil {
		return nil, notFoundOr(err, ErrWorkerNotFound, workerID)
	}
	if !worker.IsWorker() {
		return nil, fmt.Errorf("%w: %s has role %s", ErrNotWorker, worker.ID, worker.Role)
	}
	if err := authorizeSelf(ctx, worker.ID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, MachinePoolLockKey)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrSchedulerBusy, err)
		}
		return nil, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	defer unlock()

	var started *model.TaskModel
	var claimed []string
	err = s.store.transaction(ctx, func(tx *Store) error {
		var err error
		started, claimed, err = s.startNextTx(ctx, tx, worker)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("worker_id", worker.ID).Info("start-next rejected")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"worker_id": worker.ID,
		"task_id":   started.ID,
		"machines":  claimed,
	}).Info("task started")

	started, err = s.store.Tasks.FindByID(ctx, started.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload started task: %w", err)
	}
	return s.store.resolveTask(ctx, started)
}

// startNextTx 在事务内完成检查、选择和占用
func (s *schedulerService) startNextTx(ctx context.Context, tx *Store, worker *model.UserModel) (*model.TaskModel, []string, error) {
	running, err := tx.Tasks.FindByAssignee(ctx, worker.ID, model.TaskStateInProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load in-progress tasks: %w", err)
	}
	if len(running) > 0 {
		return nil, nil, fmt.Errorf("%w: task %s", ErrWorkerBusy, running[0].ID)
	}

	assigned, err := tx.Tasks.FindByAssignee(ctx, worker.ID, model.TaskStateAssigned)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load assigned tasks: %w", err)
	}
	if len(assigned) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoAssignedTasks, worker.ID)
	}

	typeIDs := make([]string, 0, len(assigned))
	for _, task := range assigned {
		typeIDs = append(typeIDs, task.TaskTypeID)
	}
	taskTypes, err := tx.TaskTypes.FindByIDs(ctx, typeIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load task types: %w", err)
	}

	candidates := make([]candidate, 0, len(assigned))
	var missing []string
	for _, task := range assigned {
		taskType, ok := taskTypes[task.TaskTypeID]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"task_id":      task.ID,
				"task_type_id": task.TaskTypeID,
			}).Warn("assigned task references a missing task type")
			missing = append(missing, task.TaskTypeID)
			continue
		}
		candidates = append(candidates, candidate{task: task, required: taskType.MachineCount})
	}
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("%w: assigned tasks reference %s", ErrTaskTypeNotFound, strings.Join(missing, ","))
	}
	// 稳定排序,所需机器数相同的保持创建顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].required > candidates[j].required
	})

	busy, err := tx.Tasks.BusyMachines(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute busy machines: %w", err)
	}
	machines, err := tx.Machines.FindAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load machines: %w", err)
	}

	for _, c := range candidates {
		free := EligibleMachines(machines, c.task.TaskTypeID, busy)
		if len(free) < c.required {
			continue
		}

		chosen := make([]string, 0, c.required)
		for _, machine := range free[:c.required] {
			chosen = append(chosen, machine.ID)
		}
		if err := s.claim(ctx, tx, c.task, chosen); err != nil {
			return nil, nil, err
		}
		return c.task, chosen, nil
	}

	return nil, nil, fmt.Errorf("%w: %d assigned task(s) waiting", ErrInsufficientMachines, len(candidates))
}

// claim 写入机器占用并把任务切换为 in-progress
func (s *schedulerService) claim(ctx context.Context, tx *Store, task *model.TaskModel, machineIDs []string) error {
	now := s.now()

	existing, err := tx.Claims.FindClaimed(ctx, machineIDs)
	if err != nil {
		return fmt.Errorf("failed to check machine claims: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: machine %s held by task %s", ErrMachineConflict, existing[0].MachineID, existing[0].TaskID)
	}
	if err := tx.Claims.Claim(ctx, task.ID, machineIDs, now); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrMachineConflict, err)
		}
		return fmt.Errorf("failed to claim machines: %w", err)
	}

	ok, err := tx.Tasks.UpdateIfState(ctx, task.ID, model.TaskStateAssigned, map[string]interface{}{
		"state":      model.TaskStateInProgress,
		"machines":   datatypes.JSONSlice[string](machineIDs),
		"start_time": now,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrWorkerBusy, err)
		}
		return fmt.Errorf("failed to start task %s: %w", task.ID, err)
	}
	if !ok {
		return ErrTaskChanged
	}

	return tx.recordTransition(ctx, &model.StateHistoryModel{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		FromState: model.TaskStateAssigned,
		ToState:   model.TaskStateInProgress,
		Reason:    "machines: " + strings.Join(machineIDs, ","),
		Operator:  operatorFromContext(ctx),
		CreatedAt: now,
	})
}

// startNextStatus 指标中的结果标签
func startNextStatus(err error) string {
	if err == nil {
		return "success"
	}
	if se, ok := AsServiceError(err); ok {
		return strings.ToLower(se.Code)
	}
	return "error"
}
