package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mautops/labtask-gin/internal/model"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetTaskStatisticsByState(ctx context.Context) ([]*TaskStatisticsByState, error)
	GetTaskStatisticsByTaskType(ctx context.Context) ([]*TaskStatisticsByTaskType, error)
	GetTaskStatisticsByTime(ctx context.Context) ([]*TaskStatisticsByTime, error)
	GetCompletionStatistics(ctx context.Context) (*CompletionStatistics, error)
	Summary(ctx context.Context) (*StatisticsSummary, error)
}

// TaskStatisticsByState 按状态统计
type TaskStatisticsByState struct {
	State model.TaskState `json:"state"`
	Count int64           `json:"count"`
}

// TaskStatisticsByTaskType 按任务类型统计
type TaskStatisticsByTaskType struct {
	TaskTypeID   string `json:"taskTypeId"`
	TaskTypeName string `json:"taskTypeName"`
	Count        int64  `json:"count"`
}

// TaskStatisticsByTime 按创建日期统计(本地时区)
type TaskStatisticsByTime struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// CompletionStatistics 执行结果统计
type CompletionStatistics struct {
	Finished           int64   `json:"finished"`
	SuccessCount       int64   `json:"successCount"`
	FailCount          int64   `json:"failCount"`
	SuccessRate        float64 `json:"successRate"`
	AverageDurationSec float64 `json:"averageDurationSeconds"` // 开始到结束的平均耗时
}

// StatisticsSummary 汇总统计
type StatisticsSummary struct {
	ByState    []*TaskStatisticsByState    `json:"byState"`
	ByTaskType []*TaskStatisticsByTaskType `json:"byTaskType"`
	ByDay      []*TaskStatisticsByTime     `json:"byDay"`
	Completion *CompletionStatistics       `json:"completion"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	store *Store
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(store *Store) StatisticsService {
	return &statisticsService{store: store}
}

// GetTaskStatisticsByState 按状态统计任务,没有任务的状态计为 0
func (s *statisticsService) GetTaskStatisticsByState(ctx context.Context) ([]*TaskStatisticsByState, error) {
	counts, err := s.store.Tasks.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by state: %w", err)
	}

	stats := make([]*TaskStatisticsByState, 0, len(model.AllTaskStates))
	for _, state := range model.AllTaskStates {
		stats = append(stats, &TaskStatisticsByState{State: state, Count: counts[state]})
	}
	return stats, nil
}

// GetTaskStatisticsByTaskType 按任务类型统计任务,按数量降序
func (s *statisticsService) GetTaskStatisticsByTaskType(ctx context.Context) ([]*TaskStatisticsByTaskType, error) {
	tasks, err := s.store.Tasks.FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by task type: %w", err)
	}

	counts := make(map[string]int64)
	ids := make([]string, 0)
	for _, task := range tasks {
		if _, ok := counts[task.TaskTypeID]; !ok {
			ids = append(ids, task.TaskTypeID)
		}
		counts[task.TaskTypeID]++
	}

	taskTypes, err := s.store.TaskTypes.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load task types: %w", err)
	}

	stats := make([]*TaskStatisticsByTaskType, 0, len(ids))
	for _, id := range ids {
		name := "unknown"
		if tt, ok := taskTypes[id]; ok {
			name = tt.Name
		}
		stats = append(stats, &TaskStatisticsByTaskType{TaskTypeID: id, TaskTypeName: name, Count: counts[id]})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	return stats, nil
}

// GetTaskStatisticsByTime 按创建日期统计任务,日期降序
// 在应用侧按本地时区分组,不依赖数据库的日期函数
func (s *statisticsService) GetTaskStatisticsByTime(ctx context.Context) ([]*TaskStatisticsByTime, error) {
	tasks, err := s.store.Tasks.FindByFilter(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by time: %w", err)
	}

	counts := make(map[string]int64)
	for _, task := range tasks {
		counts[task.CreatedAt.In(time.Local).Format(time.DateOnly)]++
	}

	stats := make([]*TaskStatisticsByTime, 0, len(counts))
	for date, count := range counts {
		stats = append(stats, &TaskStatisticsByTime{Date: date, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
	return stats, nil
}

// GetCompletionStatistics 统计已结束任务的成功率和平均耗时
func (s *statisticsService) GetCompletionStatistics(ctx context.Context) (*CompletionStatistics, error) {
	stats := &CompletionStatistics{}
	var totalDuration time.Duration
	var timed int64

	for _, state := range []model.TaskState{model.TaskStateSuccess, model.TaskStateFail} {
		tasks, err := s.store.Tasks.FindByState(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("failed to get completion statistics: %w", err)
		}
		for _, task := range tasks {
			if state == model.TaskStateSuccess {
				stats.SuccessCount++
			} else {
				stats.FailCount++
			}
			if task.TaskData.StartTime != nil && task.TaskData.EndTime != nil {
				totalDuration += task.TaskData.EndTime.Sub(*task.TaskData.StartTime)
				timed++
			}
		}
	}

	stats.Finished = stats.SuccessCount + stats.FailCount
	if stats.Finished > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.Finished)
	}
	if timed > 0 {
		stats.AverageDurationSec = totalDuration.Seconds() / float64(timed)
	}
	return stats, nil
}

// Summary 返回全部统计
func (s *statisticsService) Summary(ctx context.Context) (*StatisticsSummary, error) {
	byState, err := s.GetTaskStatisticsByState(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := s.GetTaskStatisticsByTaskType(ctx)
	if err != nil {
		return nil, err
	}
	byDay, err := s.GetTaskStatisticsByTime(ctx)
	if err != nil {
		return nil, err
	}
	completion, err := s.GetCompletionStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return &StatisticsSummary{ByState: byState, ByTaskType: byType, ByDay: byDay, Completion: completion}, nil
}
