package model

import (
	"errors"
	"slices"
	"time"

	"gorm.io/datatypes"
)

// MachineStatus 机器状态,只在读取时根据进行中的任务推导
type MachineStatus string

const (
	MachineStatusIdle  MachineStatus = "idle"
	MachineStatusInUse MachineStatus = "in-use"
)

// MachineModel 机器数据模型
// 表中不保存状态字段
type MachineModel struct {
	ID        string                      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string                      `gorm:"type:varchar(50);not null;uniqueIndex" json:"machineName"`
	TaskTypes datatypes.JSONSlice[string] `gorm:"not null" json:"machineTaskTypes"` // 支持的任务类型 ID
	CreatedAt time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time                   `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (MachineModel) TableName() string {
	return "machines"
}

// Supports 判断机器是否支持指定任务类型
func (m *MachineModel) Supports(taskTypeID string) bool {
	return slices.Contains(m.TaskTypes, taskTypeID)
}

// Validate 验证机器模型
func (m *MachineModel) Validate() error {
	if m.ID == "" {
		return errors.New("machine ID is required")
	}
	if len(m.Name) < 2 || len(m.Name) > 50 {
		return errors.New("machine name must be 2-50 characters")
	}
	return nil
}
