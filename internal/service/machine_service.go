package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MachineService 机器服务接口
type MachineService interface {
	Create(ctx context.Context, req *MachineRequest) (*MachineView, error)
	List(ctx context.Context, status string) ([]*MachineView, error)
	Get(ctx context.Context, id string) (*MachineView, error)
	Update(ctx context.Context, id string, req *MachineRequest) (*MachineView, error)
	Delete(ctx context.Context, id string) error
}

// MachineRequest 创建或更新机器请求,更新时未提供的字段保持不变
type MachineRequest struct {
	MachineName      *string   `json:"machineName"`
	MachineTaskTypes *[]string `json:"machineTaskTypes"`
}

// MachineView 带推导状态的机器
type MachineView struct {
	*model.MachineModel
	Status        model.MachineStatus `json:"status"`
	CurrentTaskID string              `json:"currentTaskId,omitempty"`
}

type machineService struct {
	store  *Store
	logger logrus.FieldLogger
	now    Clock
}

// NewMachineService 创建机器服务
func NewMachineService(store *Store, logger logrus.FieldLogger, now Clock) MachineService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &machineService{store: store, logger: logger, now: clockOrDefault(now)}
}

// withStatus 根据进行中的任务推导机器状态
func withStatus(machine *model.MachineModel, busy map[string]string) *MachineView {
	view := &MachineView{MachineModel: machine, Status: model.MachineStatusIdle}
	if taskID, ok := busy[machine.ID]; ok {
		view.Status = model.MachineStatusInUse
		view.CurrentTaskID = taskID
	}
	return view
}

// apply 校验请求并写入模型
func (s *machineService) apply(ctx context.Context, req *MachineRequest, m *model.MachineModel) error {
	if req.MachineName != nil {
		name, err := utils.ValidateName(*req.MachineName, 2, 50)
		if err != nil {
			return invalidInput("machineName", err)
		}
		m.Name = name
	}
	if req.MachineTaskTypes != nil {
		ids, err := utils.NormalizeIDs(*req.MachineTaskTypes)
		if err != nil {
			return invalidInput("machineTaskTypes", err)
		}
		ok, err := s.store.TaskTypes.ExistAll(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to check task types: %w", err)
		}
		if !ok {
			return ErrUnknownTaskType
		}
		m.TaskTypes = datatypes.JSONSlice[string](ids)
	}
	return nil
}

// Create 创建机器
func (s *machineService) Create(ctx context.Context, req *MachineRequest) (*MachineView, error) {
	if req == nil || req.MachineName == nil {
		return nil, invalidInput("machineName", utils.ErrEmptyName)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate machine id: %w", err)
	}
	now := s.now()
	machine := &model.MachineModel{
		ID:        id.String(),
		TaskTypes: datatypes.JSONSlice[string]{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(ctx, req, machine); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, machine.Name, ""); err != nil {
		return nil, err
	}

	if err := s.store.Machines.Create(ctx, machine); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, machine.Name)
		}
		return nil, fmt.Errorf("failed to create machine: %w", err)
	}

	metrics.RecordCatalogOperation("machine", "create")
	s.logger.WithFields(logrus.Fields{"machine_id": machine.ID, "name": machine.Name}).Info("machine created")
	return withStatus(machine, nil), nil
}

// List 查询机器及其状态,status 非空时按状态过滤
func (s *machineService) List(ctx context.Context, status string) ([]*MachineView, error) {
	if status != "" && status != string(model.MachineStatusIdle) && status != string(model.MachineStatusInUse) {
		return nil, invalidInput("status", fmt.Errorf("must be idle or in-use"))
	}

	machines, err := s.store.Machines.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	busy, err := s.store.Tasks.BusyMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute busy machines: %w", err)
	}

	views := make([]*MachineView, 0, len(machines))
	for _, machine := range machines {
		view := withStatus(machine, busy)
		if status != "" && string(view.Status) != status {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// Get 获取机器及其状态
func (s *machineService) Get(ctx context.Context, id string) (*MachineView, error) {
	machine, err := s.store.Machines.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, ErrMachineNotFound, id)
	}
	busy, err := s.store.Tasks.BusyMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute busy machines: %w", err)
	}
	return withStatus(machine, busy), nil
}

// Update 更新机器
func (s *machineService) Update(ctx context.Context, id string, req *MachineRequest) (*MachineView, error) {
	machine, err := s.store.Machines.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, ErrMachineNotFound, id)
	}
	if req != nil {
		if err := s.apply(ctx, req, machine); err != nil {
			return nil, err
		}
		if err := s.ensureUniqueName(ctx, machine.Name, machine.ID); err != nil {
			return nil, err
		}
		machine.UpdatedAt = s.now()
		if err := s.store.Machines.Save(ctx, machine); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, machine.Name)
			}
			return nil, fmt.Errorf("failed to update machine: %w", err)
		}
		metrics.RecordCatalogOperation("machine", "update")
	}
	return s.Get(ctx, machine.ID)
}

// Delete 删除机器,被进行中的任务占用时拒绝
func (s *machineService) Delete(ctx context.Context, id string) error {
	err := s.store.transaction(ctx, func(tx *Store) error {
		if _, err := tx.Machines.FindByID(ctx, id); err != nil {
			return notFoundOr(err, ErrMachineNotFound, id)
		}
		busy, err := tx.Tasks.BusyMachines(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute busy machines: %w", err)
		}
		if taskID, ok := busy[id]; ok {
			return fmt.Errorf("%w: task %s", ErrMachineInUse, taskID)
		}
		claims, err := tx.Claims.FindClaimed(ctx, []string{id})
		if err != nil {
			return fmt.Errorf("failed to check machine claims: %w", err)
		}
		if len(claims) > 0 {
			return fmt.Errorf("%w: task %s", ErrMachineInUse, claims[0].TaskID)
		}
		return tx.Machines.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	metrics.RecordCatalogOperation("machine", "delete")
	s.logger.WithField("machine_id", id).Info("machine deleted")
	return nil
}

// ensureUniqueName 名称已被其他机器使用时返回 ErrDuplicateName
func (s *machineService) ensureUniqueName(ctx context.Context, name, selfID string) error {
	all, err := s.store.Machines.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load machines: %w", err)
	}
	for _, other := range all {
		if other.Name == name && other.ID != selfID {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}
