package repository

import (
	"context"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"gorm.io/gorm"
)

// MachineClaimRepository 机器占用仓储接口
type MachineClaimRepository interface {
	WithTx(tx *gorm.DB) MachineClaimRepository
	FindClaimed(ctx context.Context, machineIDs []string) ([]*model.MachineClaimModel, error)
	Claim(ctx context.Context, taskID string, machineIDs []string, at time.Time) error
	ReleaseByTask(ctx context.Context, taskID string) ([]string, error)
}

// machineClaimRepository 机器占用仓储实现
type machineClaimRepository struct {
	db *gorm.DB
}

// NewMachineClaimRepository 创建机器占用仓储
func NewMachineClaimRepository(db *gorm.DB) MachineClaimRepository {
	return &machineClaimRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *machineClaimRepository) WithTx(tx *gorm.DB) MachineClaimRepository {
	return &machineClaimRepository{db: tx}
}

// FindClaimed 返回给定机器中已被占用的记录
func (r *machineClaimRepository) FindClaimed(ctx context.Context, machineIDs []string) ([]*model.MachineClaimModel, error) {
	var claims []*model.MachineClaimModel
	if len(machineIDs) == 0 {
		return claims, nil
	}
	err := r.db.WithContext(ctx).Where("machine_id IN ?", machineIDs).Find(&claims).Error
	return claims, err
}

// Claim 为任务写入占用记录,主键冲突时返回数据库错误
func (r *machineClaimRepository) Claim(ctx context.Context, taskID string, machineIDs []string, at time.Time) error {
	if len(machineIDs) == 0 {
		return nil
	}
	claims := make([]*model.MachineClaimModel, 0, len(machineIDs))
	for _, machineID := range machineIDs {
		claims = append(claims, &model.MachineClaimModel{
			MachineID: machineID,
			TaskID:    taskID,
			ClaimedAt: at,
		})
	}
	return r.db.WithContext(ctx).Create(&claims).Error
}

// ReleaseByTask 删除任务的全部占用记录,返回被释放的机器 ID
func (r *machineClaimRepository) ReleaseByTask(ctx context.Context, taskID string) ([]string, error) {
	var machineIDs []string
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.MachineClaimModel{}).
		Where("task_id = ?", taskID).
		Order("machine_id ASC").
		Pluck("machine_id", &machineIDs).Error; err != nil {
		return nil, err
	}
	if len(machineIDs) == 0 {
		return machineIDs, nil
	}
	if err := db.Where("task_id = ?", taskID).Delete(&model.MachineClaimModel{}).Error; err != nil {
		return nil, err
	}
	return machineIDs, nil
}
