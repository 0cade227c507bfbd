package model

import "time"

// MachineClaimModel 机器占用记录
// machine_id 为主键,同一台机器同一时刻只能被一个进行中的任务占用。
// 与任务状态变更在同一事务中写入和删除。
type MachineClaimModel struct {
	MachineID string    `gorm:"primaryKey;type:varchar(64)"`
	TaskID    string    `gorm:"type:varchar(64);not null;index"`
	ClaimedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (MachineClaimModel) TableName() string {
	return "machine_claims"
}
