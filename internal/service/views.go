package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
)

// UserSummary 用户摘要
type UserSummary struct {
	ID       string     `json:"id"`
	UserName string     `json:"userName"`
	UserRole model.Role `json:"userRole"`
}

// MachineSummary 机器摘要
type MachineSummary struct {
	ID          string `json:"id"`
	MachineName string `json:"machineName"`
}

// TaskView 关联信息已展开的任务
type TaskView struct {
	ID         string               `json:"id"`
	TaskName   string               `json:"taskName"`
	TaskTypeID string               `json:"taskTypeId"`
	TaskType   *model.TaskTypeModel `json:"taskType,omitempty"`
	Assigner   *UserSummary         `json:"assigner,omitempty"`
	State      model.TaskState      `json:"state"`
	Assignee   *UserSummary         `json:"assignee,omitempty"`
	Machines   []MachineSummary     `json:"machine"`
	AssignTime *time.Time           `json:"assignTime,omitempty"`
	StartTime  *time.Time           `json:"startTime,omitempty"`
	EndTime    *time.Time           `json:"endTime,omitempty"`
	Message    string               `json:"message,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func summarizeUser(user *model.UserModel) *UserSummary {
	if user == nil {
		return nil
	}
	return &UserSummary{ID: user.ID, UserName: user.Name, UserRole: user.Role}
}

// resolveTasks 批量展开任务的任务类型、人员和机器
func (s *Store) resolveTasks(ctx context.Context, tasks []*model.TaskModel) ([]*TaskView, error) {
	views := make([]*TaskView, 0, len(tasks))
	if len(tasks) == 0 {
		return views, nil
	}

	typeIDs := make([]string, 0, len(tasks))
	userIDs := make([]string, 0, len(tasks))
	needMachines := false
	for _, task := range tasks {
		typeIDs = append(typeIDs, task.TaskTypeID)
		if task.AssignerID != nil {
			userIDs = append(userIDs, *task.AssignerID)
		}
		if task.TaskData.AssigneeID != nil {
			userIDs = append(userIDs, *task.TaskData.AssigneeID)
		}
		if len(task.TaskData.Machines) > 0 {
			needMachines = true
		}
	}

	taskTypes, err := s.TaskTypes.FindByIDs(ctx, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load task types: %w", err)
	}
	users, err := s.Users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	machines := make(map[string]*model.MachineModel)
	if needMachines {
		all, err := s.Machines.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load machines: %w", err)
		}
		for _, m := range all {
			machines[m.ID] = m
		}
	}

	for _, task := range tasks {
		view := &TaskView{
			ID:         task.ID,
			TaskName:   task.Name,
			TaskTypeID: task.TaskTypeID,
			TaskType:   taskTypes[task.TaskTypeID],
			State:      task.TaskData.State,
			Machines:   make([]MachineSummary, 0, len(task.TaskData.Machines)),
			AssignTime: task.TaskData.AssignTime,
			StartTime:  task.TaskData.StartTime,
			EndTime:    task.TaskData.EndTime,
			Message:    task.TaskData.Message,
			CreatedAt:  task.CreatedAt,
			UpdatedAt:  task.UpdatedAt,
		}
		if task.AssignerID != nil {
			view.Assigner = summarizeUser(users[*task.AssignerID])
		}
		if task.TaskData.AssigneeID != nil {
			view.Assignee = summarizeUser(users[*task.TaskData.AssigneeID])
		}
		for _, machineID := range task.TaskData.Machines {
			summary := MachineSummary{ID: machineID}
			if m, ok := machines[machineID]; ok {
				summary.MachineName = m.Name
			}
			view.Machines = append(view.Machines, summary)
		}
		views = append(views, view)
	}
	return views, nil
}

// resolveTask 展开单个任务
func (s *Store) resolveTask(ctx context.Context, task *model.TaskModel) (*TaskView, error) {
	views, err := s.resolveTasks(ctx, []*model.TaskModel{task})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}
