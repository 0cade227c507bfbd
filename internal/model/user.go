package model

import (
	"errors"
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Role 用户角色
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLeader Role = "leader"
	RoleWorker Role = "worker"
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleLeader || r == RoleWorker
}

// UserModel 用户数据模型
type UserModel struct {
	ID           string                      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string                      `gorm:"type:varchar(64);not null;uniqueIndex" json:"userName"`
	PasswordHash string                      `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role                        `gorm:"type:varchar(16);not null;index" json:"userRole"`
	TaskTypes    datatypes.JSONSlice[string] `gorm:"not null" json:"userTaskTypes"` // 具备的技能(任务类型 ID)
	CreatedAt    time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time                   `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// HasSkill 判断用户是否具备指定任务类型的技能
func (u *UserModel) HasSkill(taskTypeID string) bool {
	return slices.Contains(u.TaskTypes, taskTypeID)
}

// IsWorker 判断是否为作业员
func (u *UserModel) IsWorker() bool {
	return u.Role == RoleWorker
}

// Validate 验证用户模型
func (u *UserModel) Validate() error {
	if u.ID == "" {
		return errors.New("user ID is required")
	}
	if u.Name == "" {
		return errors.New("user name is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !u.Role.Valid() {
		return errors.New("user role is invalid")
	}
	return nil
}
