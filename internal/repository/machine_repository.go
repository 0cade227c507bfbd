package repository

import (
	"context"

	"github.com/mautops/labtask-gin/internal/model"
	"gorm.io/gorm"
)

// machineOrder 机器的选择顺序
const machineOrder = "created_at ASC, name ASC"

// MachineRepository 机器仓储接口
type MachineRepository interface {
	WithTx(tx *gorm.DB) MachineRepository
	Create(ctx context.Context, machine *model.MachineModel) error
	Save(ctx context.Context, machine *model.MachineModel) error
	FindByID(ctx context.Context, id string) (*model.MachineModel, error)
	FindAll(ctx context.Context) ([]*model.MachineModel, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

// machineRepository 机器仓储实现
type machineRepository struct {
	db *gorm.DB
}

// NewMachineRepository 创建机器仓储
func NewMachineRepository(db *gorm.DB) MachineRepository {
	return &machineRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *machineRepository) WithTx(tx *gorm.DB) MachineRepository {
	return &machineRepository{db: tx}
}

// Create 保存新机器
func (r *machineRepository) Create(ctx context.Context, machine *model.MachineModel) error {
	return r.db.WithContext(ctx).Create(machine).Error
}

// Save 更新机器
func (r *machineRepository) Save(ctx context.Context, machine *model.MachineModel) error {
	return r.db.WithContext(ctx).Save(machine).Error
}

// FindByID 根据 ID 查找机器
func (r *machineRepository) FindByID(ctx context.Context, id string) (*model.MachineModel, error) {
	var machine model.MachineModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&machine).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

// FindAll 按创建顺序查找所有机器
// 支持任务类型的过滤在内存中完成,JSON 列在 PostgreSQL 与 SQLite 上没有统一的包含查询
func (r *machineRepository) FindAll(ctx context.Context) ([]*model.MachineModel, error) {
	var machines []*model.MachineModel
	err := r.db.WithContext(ctx).Order(machineOrder).Find(&machines).Error
	return machines, err
}

// Count 统计机器总数
func (r *machineRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.MachineModel{}).Count(&total).Error
	return total, err
}

// Delete 删除机器
func (r *machineRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MachineModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
