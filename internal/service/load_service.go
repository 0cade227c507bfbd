package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// activeStates 计入当前负载的状态
var activeStates = []model.TaskState{model.TaskStateAssigned, model.TaskStateInProgress}

// LoadService 作业员负载统计服务接口
type LoadService interface {
	CurrentLoad(ctx context.Context, workerID string) (int, error)
	CurrentLoads(ctx context.Context, workerIDs []string) (map[string]int, error)
	WeeklyCounts(ctx context.Context, workerIDs []string, start, end time.Time) (map[string]int, error)
	WeeklyLoad(ctx context.Context, workerID string) (*WeeklyLoad, error)
	LoadReport(ctx context.Context, workerID *string) ([]*WorkerLoad, error)
	WorkersWithTasks(ctx context.Context, workerID *string) ([]*WorkerTasks, error)
}

// WeeklyLoad 作业员本周负载
type WeeklyLoad struct {
	WorkerID  string      `json:"workerId"`
	UserName  string      `json:"userName"`
	WeekStart time.Time   `json:"weekStart"`
	WeekEnd   time.Time   `json:"weekEnd"`
	Count     int         `json:"count"`
	Tasks     []*TaskView `json:"tasks"`
}

// WorkerLoad 作业员当前负载
type WorkerLoad struct {
	WorkerID   string      `json:"workerId"`
	UserName   string      `json:"userName"`
	Assigned   []*TaskView `json:"assigned"`
	InProgress []*TaskView `json:"inProgress"`
}

// WorkerTasks 作业员及其全部任务
type WorkerTasks struct {
	ID         string                 `json:"id"`
	UserName   string                 `json:"userName"`
	UserRole   model.Role             `json:"userRole"`
	Skills     []*model.TaskTypeModel `json:"userTaskTypes"`
	Assigned   []*TaskView            `json:"assigned"`
	InProgress []*TaskView            `json:"inProgress"`
	Completed  []*TaskView            `json:"completed"`
	Failed     []*TaskView            `json:"failed"`
}

type loadService struct {
	store  *Store
	logger logrus.FieldLogger
	now    Clock
}

// NewLoadService 创建负载统计服务
func NewLoadService(store *Store, logger logrus.FieldLogger, now Clock) LoadService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &loadService{store: store, logger: logger, now: clockOrDefault(now)}
}

// WeekBounds 返回 now 所在周的周一 00:00:00.000 和周日 23:59:59.999(本地时区)
// 周日属于前一个周一开始的那一周
func WeekBounds(now time.Time) (time.Time, time.Time) {
	weekday := int(now.Weekday())
	offset := 1 - weekday
	if weekday == 0 {
		offset = -6
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d+offset, 0, 0, 0, 0, now.Location())
	end := time.Date(y, m, d+offset+6, 23, 59, 59, int(999*time.Millisecond), now.Location())
	return start, end
}

// CurrentLoad 作业员处于 assigned / in-progress 的任务数
func (s *loadService) CurrentLoad(ctx context.Context, workerID string) (int, error) {
	loads, err := s.CurrentLoads(ctx, []string{workerID})
	if err != nil {
		return 0, err
	}
	return loads[workerID], nil
}

// CurrentLoads 批量统计当前负载
func (s *loadService) CurrentLoads(ctx context.Context, workerIDs []string) (map[string]int, error) {
	loads, err := s.store.Tasks.CountByAssignees(ctx, workerIDs, activeStates...)
	if err != nil {
		return nil, fmt.Errorf("failed to count current load: %w", err)
	}
	return loads, nil
}

// WeeklyCounts 批量统计时间窗口内被分配的任务数,不区分状态
func (s *loadService) WeeklyCounts(ctx context.Context, workerIDs []string, start, end time.Time) (map[string]int, error) {
	counts, err := s.store.Tasks.CountAssignedBetween(ctx, workerIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count weekly load: %w", err)
	}
	return counts, nil
}

// WeeklyLoad 作业员本周被分配的任务
func (s *loadService) WeeklyLoad(ctx context.Context, workerID string) (*WeeklyLoad, error) {
	worker, err := s.findWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}

	start, end := WeekBounds(s.now())
	tasks, err := s.store.Tasks.FindAssignedBetween(ctx, worker.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly tasks: %w", err)
	}
	views, err := s.store.resolveTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	return &WeeklyLoad{
		WorkerID:  worker.ID,
		UserName:  worker.Name,
		WeekStart: start,
		WeekEnd:   end,
		Count:     len(views),
		Tasks:     views,
	}, nil
}

// LoadReport 作业员当前负载明细,workerID 为空时返回全部作业员
func (s *loadService) LoadReport(ctx context.Context, workerID *string) ([]*WorkerLoad, error) {
	workers, err := s.workers(ctx, workerID)
	if err != nil {
		return nil, err
	}

	report := make([]*WorkerLoad, 0, len(workers))
	for _, worker := range workers {
		groups, err := s.tasksByState(ctx, worker.ID, activeStates...)
		if err != nil {
			return nil, err
		}
		report = append(report, &WorkerLoad{
			WorkerID:   worker.ID,
			UserName:   worker.Name,
			Assigned:   groups[model.TaskStateAssigned],
			InProgress: groups[model.TaskStateInProgress],
		})
	}
	return report, nil
}

// WorkersWithTasks 作业员及其技能和各状态任务
func (s *loadService) WorkersWithTasks(ctx context.Context, workerID *string) ([]*WorkerTasks, error) {
	workers, err := s.workers(ctx, workerID)
	if err != nil {
		return nil, err
	}

	result := make([]*WorkerTasks, 0, len(workers))
	for _, worker := range workers {
		groups, err := s.tasksByState(ctx, worker.ID)
		if err != nil {
			return nil, err
		}
		skills, err := s.store.TaskTypes.FindByIDs(ctx, worker.TaskTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to load skills: %w", err)
		}
		ordered := make([]*model.TaskTypeModel, 0, len(skills))
		for _, id := range worker.TaskTypes {
			if taskType, ok := skills[id]; ok {
				ordered = append(ordered, taskType)
			}
		}
		result = append(result, &WorkerTasks{
			ID:         worker.ID,
			UserName:   worker.Name,
			UserRole:   worker.Role,
			Skills:     ordered,
			Assigned:   groups[model.TaskStateAssigned],
			InProgress: groups[model.TaskStateInProgress],
			Completed:  groups[model.TaskStateSuccess],
			Failed:     groups[model.TaskStateFail],
		})
	}
	return result, nil
}

// tasksByState 加载作业员的任务并按状态分组,每个状态都有非 nil 的切片
func (s *loadService) tasksByState(ctx context.Context, workerID string, states ...model.TaskState) (map[model.TaskState][]*TaskView, error) {
	tasks, err := s.store.Tasks.FindByAssignee(ctx, workerID, states...)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks of worker %s: %w", workerID, err)
	}
	views, err := s.store.resolveTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	groups := map[model.TaskState][]*TaskView{
		model.TaskStateAssigned:   {},
		model.TaskStateInProgress: {},
		model.TaskStateSuccess:    {},
		model.TaskStateFail:       {},
	}
	for _, view := range views {
		groups[view.State] = append(groups[view.State], view)
	}
	return groups, nil
}

// workers 返回指定作业员或全部作业员
func (s *loadService) workers(ctx context.Context, workerID *string) ([]*model.UserModel, error) {
	if workerID != nil {
		worker, err := s.findWorker(ctx, *workerID)
		if err != nil {
			return nil, err
		}
		return []*model.UserModel{worker}, nil
	}
	workers, err := s.store.Users.FindByRole(ctx, model.RoleWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to load workers: %w", err)
	}
	return workers, nil
}

// findWorker 查找作业员,不存在或角色不是 worker 时返回 ErrWorkerNotFound
func (s *loadService) findWorker(ctx context.Context, workerID string) (*model.UserModel, error) {
	if err := utils.ValidateID(workerID); err != nil {
		return nil, invalidInput("workerId", err)
	}
	worker, err := s.store.Users.FindByID(ctx, workerID)
	if err != nil {
		return nil, notFoundOr(err, ErrWorkerNotFound, workerID)
	}
	if !worker.IsWorker() {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	return worker, nil
}
