package model

import (
	"errors"
	"time"
)

// TaskTypeModel 任务类型数据模型
type TaskTypeModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"taskName"`
	MachineCount int       `gorm:"not null" json:"machineCount"` // 执行所需机器数量
	Color        string    `gorm:"type:varchar(32)" json:"color,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (TaskTypeModel) TableName() string {
	return "task_types"
}

// Validate 验证任务类型模型
func (m *TaskTypeModel) Validate() error {
	if m.ID == "" {
		return errors.New("task type ID is required")
	}
	if len(m.Name) < 2 || len(m.Name) > 50 {
		return errors.New("task type name must be 2-50 characters")
	}
	if m.MachineCount < 1 || m.MachineCount > 20 {
		return errors.New("machine count must be between 1 and 20")
	}
	return nil
}
