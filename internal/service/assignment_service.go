package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PreviewMode 预览时的基准负载口径
type PreviewMode string

const (
	// PreviewCurrent 以 assigned + in-progress 任务数为基准
	PreviewCurrent PreviewMode = "current"
	// PreviewWeekly 以本周已分配的任务数为基准
	PreviewWeekly PreviewMode = "weekly"
)

// ParsePreviewMode 解析预览口径,空字符串返回 fallback
func ParsePreviewMode(value string, fallback PreviewMode) (PreviewMode, error) {
	switch PreviewMode(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return fallback, nil
	case PreviewCurrent:
		return PreviewCurrent, nil
	case PreviewWeekly:
		return PreviewWeekly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreviewMode, value)
}

// 分配结果状态
const (
	AssignmentAssigned = "assigned"
	AssignmentSkipped  = "skipped"
)

// AssignmentService 自动分配服务接口
type AssignmentService interface {
	Preview(ctx context.Context, mode PreviewMode) ([]*PreviewEntry, error)
	Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResult, error)
}

// PreviewAssignee 预览中选中的作业员
type PreviewAssignee struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// PreviewEntry 单个草稿任务的预览分配
type PreviewEntry struct {
	TaskID          string          `json:"taskId"`
	TaskName        string          `json:"taskName"`
	TaskTypeID      string          `json:"taskTypeId"`
	PreviewAssignee PreviewAssignee `json:"previewAssignee"`
	ProjectedLoad   int             `json:"projectedLoad"` // 选中后该作业员的预计负载
}

// AssignmentItem 待确认的分配
type AssignmentItem struct {
	TaskID     string `json:"taskId"`
	AssigneeID string `json:"assigneeId"`
}

// ConfirmRequest 确认分配请求
type ConfirmRequest struct {
	AssignerID  string           `json:"assignerId"`
	Assignments []AssignmentItem `json:"assignments"`
}

// AssignmentResult 单条分配结果
type AssignmentResult struct {
	TaskID     string `json:"taskId"`
	Status     string `json:"status"`
	AssigneeID string `json:"assigneeId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ConfirmResult 确认分配结果
type ConfirmResult struct {
	Results  []AssignmentResult `json:"results"`
	Assigned int                `json:"assigned"`
	Skipped  int                `json:"skipped"`
}

type assignmentService struct {
	store  *Store
	loads  LoadService
	logger logrus.FieldLogger
	now    Clock
}

// NewAssignmentService 创建自动分配服务
func NewAssignmentService(store *Store, loads LoadService, logger logrus.FieldLogger, now Clock) AssignmentService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &assignmentService{store: store, loads: loads, logger: logger, now: clockOrDefault(now)}
}

// Preview 为全部草稿任务计算建议的作业员,不写入任何数据
func (s *assignmentService) Preview(ctx context.Context, mode PreviewMode) ([]*PreviewEntry, error) {
	started := time.Now()
	defer func() { metrics.ObserveAssignment("preview", time.Since(started).Seconds()) }()

	if mode != PreviewCurrent && mode != PreviewWeekly {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPreviewMode, mode)
	}

	drafts, err := s.store.Tasks.FindByState(ctx, model.TaskStateDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft tasks: %w", err)
	}
	entries := make([]*PreviewEntry, 0, len(drafts))
	if len(drafts) == 0 {
		return entries, nil
	}

	workers, err := s.store.Users.FindByRole(ctx, model.RoleWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to load workers: %w", err)
	}
	workerIDs := make([]string, 0, len(workers))
	for _, worker := range workers {
		workerIDs = append(workerIDs, worker.ID)
	}

	var baseline map[string]int
	switch mode {
	case PreviewWeekly:
		start, end := WeekBounds(s.now())
		baseline, err = s.loads.WeeklyCounts(ctx, workerIDs, start, end)
	default:
		baseline, err = s.loads.CurrentLoads(ctx, workerIDs)
	}
	if err != nil {
		return nil, err
	}

	// 模拟增量只在本次调用内有效
	simulated := make(map[string]int, len(workers))
	projected := func(workerID string) int {
		return baseline[workerID] + simulated[workerID]
	}

	for _, task := range drafts {
		eligible := EligibleWorkers(workers, task.TaskTypeID)
		if len(eligible) == 0 {
			s.logger.WithFields(logrus.Fields{
				"task_id":      task.ID,
				"task_type_id": task.TaskTypeID,
			}).Debug("no eligible worker for draft task")
			continue
		}

		chosen := RankWorkers(eligible, projected)[0]
		simulated[chosen.ID]++
		entries = append(entries, &PreviewEntry{
			TaskID:     task.ID,
			TaskName:   task.Name,
			TaskTypeID: task.TaskTypeID,
			PreviewAssignee: PreviewAssignee{
				ID:       chosen.ID,
				UserName: chosen.Name,
			},
			ProjectedLoad: projected(chosen.ID),
		})
	}

	s.logger.WithFields(logrus.Fields{
		"mode":    mode,
		"drafts":  len(drafts),
		"planned": len(entries),
	}).Debug("assignment preview computed")
	return entries, nil
}

// validate 校验整个请求的格式,格式错误时整批拒绝
func (r *ConfirmRequest) validate() error {
	if r == nil {
		return fmt.Errorf("%w: request body is required", ErrEmptyAssignments)
	}
	r.AssignerID = strings.TrimSpace(r.AssignerID)
	if err := utils.ValidateID(r.AssignerID); err != nil {
		return invalidInput("assignerId", err)
	}
	if len(r.Assignments) == 0 {
		return ErrEmptyAssignments
	}
	for i := range r.Assignments {
		item := &r.Assignments[i]
		item.TaskID = strings.TrimSpace(item.TaskID)
		item.AssigneeID = strings.TrimSpace(item.AssigneeID)
		if err := utils.ValidateID(item.TaskID); err != nil {
			return invalidInput(fmt.Sprintf("assignments[%d].taskId", i), err)
		}
		if err := utils.ValidateID(item.AssigneeID); err != nil {
			return invalidInput(fmt.Sprintf("assignments[%d].assigneeId", i), err)
		}
	}
	return nil
}

// Confirm 逐条应用分配,单条失败记为 skipped,不影响其他条目
func (s *assignmentService) Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResult, error) {
	started := time.Now()
	defer func() { metrics.ObserveAssignment("confirm", time.Since(started).Seconds()) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.Users.FindByID(ctx, req.AssignerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssignerNotFound, req.AssignerID)
		}
		return nil, fmt.Errorf("failed to load assigner: %w", err)
	}

	result := &ConfirmResult{Results: make([]AssignmentResult, 0, len(req.Assignments))}
	for _, item := range req.Assignments {
		err := s.confirmOne(ctx, req.AssignerID, item)
		if err == nil {
			result.Assigned++
			result.Results = append(result.Results, AssignmentResult{
				TaskID:     item.TaskID,
				Status:     AssignmentAssigned,
				AssigneeID: item.AssigneeID,
			})
			continue
		}

		if _, ok := AsServiceError(err); !ok {
			// 存储错误不降级为 skipped,已提交的条目保持不变
			s.logger.WithError(err).WithField("task_id", item.TaskID).Error("assignment confirm aborted")
			return nil, err
		}
		result.Skipped++
		result.Results = append(result.Results, AssignmentResult{
			TaskID:     item.TaskID,
			Status:     AssignmentSkipped,
			AssigneeID: item.AssigneeID,
			Reason:     err.Error(),
		})
	}

	s.logger.WithFields(logrus.Fields{
		"assigner_id": req.AssignerID,
		"assigned":    result.Assigned,
		"skipped":     result.Skipped,
	}).Info("assignment confirmed")
	return result, nil
}

// confirmOne 在独立事务中把一条草稿任务分配给作业员
func (s *assignmentService) confirmOne(ctx context.Context, assignerID string, item AssignmentItem) error {
	now := s.now()
	return s.store.transaction(ctx, func(tx *Store) error {
		task, err := tx.Tasks.FindByID(ctx, item.TaskID)
		if err != nil {
			return notFoundOr(err, ErrTaskNotFound, item.TaskID)
		}
		if task.TaskData.State != model.TaskStateDraft {
			return fmt.Errorf("%w: current state is %s", ErrTaskNotDraft, task.TaskData.State)
		}

		assignee, err := tx.Users.FindByID(ctx, item.AssigneeID)
		if err != nil {
			return notFoundOr(err, ErrUserNotFound, item.AssigneeID)
		}
		if !assignee.IsWorker() {
			return fmt.Errorf("%w: %s has role %s", ErrNotWorker, assignee.ID, assignee.Role)
		}

		ok, err := tx.Tasks.UpdateIfState(ctx, task.ID, model.TaskStateDraft, map[string]interface{}{
			"assigner_id": assignerID,
			"assignee_id": assignee.ID,
			"state":       model.TaskStateAssigned,
			"assign_time": now,
		})
		if err != nil {
			return fmt.Errorf("failed to assign task %s: %w", task.ID, err)
		}
		if !ok {
			return ErrTaskChanged
		}

		return tx.recordTransition(ctx, &model.StateHistoryModel{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			FromState: model.TaskStateDraft,
			ToState:   model.TaskStateAssigned,
			Reason:    "assigned to " + assignee.Name,
			Operator:  assignerID,
			CreatedAt: now,
		})
	})
}
