package repository

import (
	"context"

	"github.com/mautops/labtask-gin/internal/model"
	"gorm.io/gorm"
)

// TaskTypeRepository 任务类型仓储接口
type TaskTypeRepository interface {
	WithTx(tx *gorm.DB) TaskTypeRepository
	Create(ctx context.Context, taskType *model.TaskTypeModel) error
	Save(ctx context.Context, taskType *model.TaskTypeModel) error
	FindByID(ctx context.Context, id string) (*model.TaskTypeModel, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.TaskTypeModel, error)
	FindAll(ctx context.Context) ([]*model.TaskTypeModel, error)
	ExistAll(ctx context.Context, ids []string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// taskTypeRepository 任务类型仓储实现
type taskTypeRepository struct {
	db *gorm.DB
}

// NewTaskTypeRepository 创建任务类型仓储
func NewTaskTypeRepository(db *gorm.DB) TaskTypeRepository {
	return &taskTypeRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *taskTypeRepository) WithTx(tx *gorm.DB) TaskTypeRepository {
	return &taskTypeRepository{db: tx}
}

// Create 保存新任务类型
func (r *taskTypeRepository) Create(ctx context.Context, taskType *model.TaskTypeModel) error {
	return r.db.WithContext(ctx).Create(taskType).Error
}

// Save 更新任务类型
func (r *taskTypeRepository) Save(ctx context.Context, taskType *model.TaskTypeModel) error {
	return r.db.WithContext(ctx).Save(taskType).Error
}

// FindByID 根据 ID 查找任务类型
func (r *taskTypeRepository) FindByID(ctx context.Context, id string) (*model.TaskTypeModel, error) {
	var taskType model.TaskTypeModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&taskType).Error; err != nil {
		return nil, err
	}
	return &taskType, nil
}

// FindByIDs 批量查找任务类型,结果以 ID 为键
func (r *taskTypeRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.TaskTypeModel, error) {
	result := make(map[string]*model.TaskTypeModel, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var taskTypes []*model.TaskTypeModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&taskTypes).Error; err != nil {
		return nil, err
	}
	for _, taskType := range taskTypes {
		result[taskType.ID] = taskType
	}
	return result, nil
}

// FindAll 按创建顺序查找所有任务类型
func (r *taskTypeRepository) FindAll(ctx context.Context) ([]*model.TaskTypeModel, error) {
	var taskTypes []*model.TaskTypeModel
	err := r.db.WithContext(ctx).Order(creationOrder).Find(&taskTypes).Error
	return taskTypes, err
}

// ExistAll 判断给定 ID 是否全部存在(重复 ID 只计一次)
func (r *taskTypeRepository) ExistAll(ctx context.Context, ids []string) (bool, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return true, nil
	}
	keys := make([]string, 0, len(unique))
	for id := range unique {
		keys = append(keys, id)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.TaskTypeModel{}).Where("id IN ?", keys).Count(&total).Error; err != nil {
		return false, err
	}
	return int(total) == len(keys), nil
}

// Delete 删除任务类型
func (r *taskTypeRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TaskTypeModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
