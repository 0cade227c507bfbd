package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// TaskState 任务状态
type TaskState string

const (
	TaskStateDraft      TaskState = "draft"
	TaskStateAssigned   TaskState = "assigned"
	TaskStateInProgress TaskState = "in-progress"
	TaskStateSuccess    TaskState = "success"
	TaskStateFail       TaskState = "fail"
)

// AllTaskStates 按生命周期顺序排列的全部状态
var AllTaskStates = []TaskState{
	TaskStateDraft, TaskStateAssigned, TaskStateInProgress, TaskStateSuccess, TaskStateFail,
}

// IsTerminal 判断是否为终态(success / fail)
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSuccess || s == TaskStateFail
}

// Valid 判断状态值是否合法
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateDraft, TaskStateAssigned, TaskStateInProgress, TaskStateSuccess, TaskStateFail:
		return true
	}
	return false
}

// TaskData 任务执行数据,内嵌在 tasks 表中
type TaskData struct {
	State      TaskState                   `gorm:"type:varchar(32);not null;index;index:idx_tasks_assignee_state,priority:2" json:"state"`
	AssigneeID *string                     `gorm:"type:varchar(64);index:idx_tasks_assignee_state,priority:1" json:"assigneeId"`
	Machines   datatypes.JSONSlice[string] `gorm:"not null" json:"machine"` // 进行中时占用的机器 ID
	AssignTime *time.Time                  `gorm:"index" json:"assignTime"`
	StartTime  *time.Time                  `json:"startTime"`
	EndTime    *time.Time                  `json:"endTime"`
	Message    string                      `gorm:"type:text" json:"message"`
}

// TaskModel 任务数据模型
type TaskModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskTypeID string    `gorm:"type:varchar(64);not null;index" json:"taskTypeId"`
	Name       string    `gorm:"type:varchar(255);not null" json:"taskName"`
	AssignerID *string   `gorm:"type:varchar(64)" json:"assignerId"`
	TaskData   TaskData  `gorm:"embedded" json:"taskData"`
	CreatedAt  time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.TaskTypeID == "" {
		return errors.New("task type ID is required")
	}
	if tm.Name == "" {
		return errors.New("task name is required")
	}
	if !tm.TaskData.State.Valid() {
		return errors.New("task state is invalid")
	}
	if tm.TaskData.State == TaskStateDraft && tm.TaskData.AssigneeID != nil {
		return errors.New("draft task must not have an assignee")
	}
	if tm.TaskData.State != TaskStateDraft && tm.TaskData.AssigneeID == nil {
		return errors.New("non-draft task requires an assignee")
	}
	if tm.TaskData.State != TaskStateInProgress && len(tm.TaskData.Machines) > 0 {
		return errors.New("only in-progress tasks may hold machines")
	}
	return nil
}
