package repository

import (
	"context"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"gorm.io/gorm"
)

// creationOrder 任务的自然顺序(ID 为时间有序的 UUIDv7)
const creationOrder = "created_at ASC, id ASC"

// TaskRepository 任务仓储接口
// 状态变更只通过条件更新完成,不提供无条件的状态写入
type TaskRepository interface {
	WithTx(tx *gorm.DB) TaskRepository
	Create(ctx context.Context, task *model.TaskModel) error
	FindByID(ctx context.Context, id string) (*model.TaskModel, error)
	FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, error)
	FindByState(ctx context.Context, state model.TaskState) ([]*model.TaskModel, error)
	FindByAssignee(ctx context.Context, assigneeID string, states ...model.TaskState) ([]*model.TaskModel, error)
	FindAssignedBetween(ctx context.Context, assigneeID string, start, end time.Time) ([]*model.TaskModel, error)
	CountByAssignees(ctx context.Context, assigneeIDs []string, states ...model.TaskState) (map[string]int, error)
	CountAssignedBetween(ctx context.Context, assigneeIDs []string, start, end time.Time) (map[string]int, error)
	CountByState(ctx context.Context) (map[model.TaskState]int64, error)
	CountByTaskType(ctx context.Context, taskTypeID string) (int64, error)
	BusyMachines(ctx context.Context) (map[string]string, error)
	UpdateIfState(ctx context.Context, id string, from model.TaskState, updates map[string]interface{}) (bool, error)
	DeleteIfState(ctx context.Context, id string, state model.TaskState) (bool, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	State      *model.TaskState
	AssigneeID *string
	TaskTypeID *string
}

// taskRepository 任务仓储实现
type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *taskRepository) WithTx(tx *gorm.DB) TaskRepository {
	return &taskRepository{db: tx}
}

// Create 保存新任务
func (r *taskRepository) Create(ctx context.Context, task *model.TaskModel) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// FindByID 根据 ID 查找任务
func (r *taskRepository) FindByID(ctx context.Context, id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByFilter 根据过滤器查找任务,按创建顺序返回
func (r *taskRepository) FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	query := r.db.WithContext(ctx).Model(&model.TaskModel{})

	if filter != nil {
		if filter.State != nil {
			query = query.Where("state = ?", *filter.State)
		}
		if filter.AssigneeID != nil {
			query = query.Where("assignee_id = ?", *filter.AssigneeID)
		}
		if filter.TaskTypeID != nil {
			query = query.Where("task_type_id = ?", *filter.TaskTypeID)
		}
	}

	err := query.Order(creationOrder).Find(&tasks).Error
	return tasks, err
}

// FindByState 查找指定状态的任务
func (r *taskRepository) FindByState(ctx context.Context, state model.TaskState) ([]*model.TaskModel, error) {
	return r.FindByFilter(ctx, &TaskFilter{State: &state})
}

// FindByAssignee 查找作业员名下的任务,可按状态过滤
func (r *taskRepository) FindByAssignee(ctx context.Context, assigneeID string, states ...model.TaskState) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	query := r.db.WithContext(ctx).Where("assignee_id = ?", assigneeID)
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	err := query.Order(creationOrder).Find(&tasks).Error
	return tasks, err
}

// FindAssignedBetween 查找分配时间落在 [start, end] 内的任务,不区分状态
func (r *taskRepository) FindAssignedBetween(ctx context.Context, assigneeID string, start, end time.Time) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.WithContext(ctx).
		Where("assignee_id = ? AND assign_time >= ? AND assign_time <= ?", assigneeID, start, end).
		Order("assign_time ASC, id ASC").
		Find(&tasks).Error
	return tasks, err
}

type assigneeCount struct {
	AssigneeID string
	Total      int
}

// CountByAssignees 统计每个作业员在指定状态下的任务数量
// 返回的 map 中包含所有传入的作业员,没有任务的计为 0
func (r *taskRepository) CountByAssignees(ctx context.Context, assigneeIDs []string, states ...model.TaskState) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	if len(assigneeIDs) == 0 {
		return counts, nil
	}
	for _, id := range assigneeIDs {
		counts[id] = 0
	}

	var rows []assigneeCount
	query := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Select("assignee_id, COUNT(*) AS total").
		Where("assignee_id IN ?", assigneeIDs)
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	if err := query.Group("assignee_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AssigneeID] = row.Total
	}
	return counts, nil
}

// CountAssignedBetween 统计每个作业员在时间窗口内被分配的任务数量
func (r *taskRepository) CountAssignedBetween(ctx context.Context, assigneeIDs []string, start, end time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	if len(assigneeIDs) == 0 {
		return counts, nil
	}
	for _, id := range assigneeIDs {
		counts[id] = 0
	}

	var rows []assigneeCount
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Select("assignee_id, COUNT(*) AS total").
		Where("assignee_id IN ? AND assign_time >= ? AND assign_time <= ?", assigneeIDs, start, end).
		Group("assignee_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AssigneeID] = row.Total
	}
	return counts, nil
}

// CountByState 按状态统计任务数量
func (r *taskRepository) CountByState(ctx context.Context) (map[model.TaskState]int64, error) {
	var rows []struct {
		State model.TaskState
		Total int64
	}
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.TaskState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}

// CountByTaskType 统计引用指定任务类型的任务数量
func (r *taskRepository) CountByTaskType(ctx context.Context, taskTypeID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("task_type_id = ?", taskTypeID).
		Count(&total).Error
	return total, err
}

// BusyMachines 返回被进行中任务占用的机器,机器 ID -> 任务 ID
func (r *taskRepository) BusyMachines(ctx context.Context) (map[string]string, error) {
	var tasks []*model.TaskModel
	err := r.db.WithContext(ctx).
		Select("id", "machines").
		Where("state = ?", model.TaskStateInProgress).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	busy := make(map[string]string)
	for _, task := range tasks {
		for _, machineID := range task.TaskData.Machines {
			busy[machineID] = task.ID
		}
	}
	return busy, nil
}

// UpdateIfState 仅当任务处于 from 状态时更新,返回是否命中
func (r *taskRepository) UpdateIfState(ctx context.Context, id string, from model.TaskState, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteIfState 仅当任务处于指定状态时删除,返回是否命中
func (r *taskRepository) DeleteIfState(ctx context.Context, id string, state model.TaskState) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, state).
		Delete(&model.TaskModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
