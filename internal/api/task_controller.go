package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
)

// TaskController 任务控制器
type TaskController struct {
	tasks       service.TaskService
	assignment  service.AssignmentService
	scheduler   service.SchedulerService
	loads       service.LoadService
	previewMode service.PreviewMode
}

// NewTaskController 创建任务控制器,previewMode 为未指定 mode 时的预览口径
func NewTaskController(
	tasks service.TaskService,
	assignment service.AssignmentService,
	scheduler service.SchedulerService,
	loads service.LoadService,
	previewMode service.PreviewMode,
) *TaskController {
	if previewMode == "" {
		previewMode = service.PreviewCurrent
	}
	return &TaskController{
		tasks:       tasks,
		assignment:  assignment,
		scheduler:   scheduler,
		loads:       loads,
		previewMode: previewMode,
	}
}

// Create 创建任务
// @Summary      创建草稿任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateTaskRequest true "任务信息"
// @Success      201  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks [post]
// @Security     BearerAuth
func (c *TaskController) Create(ctx *gin.Context) {
	var req service.CreateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := c.tasks.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Created(ctx, task)
}

// List 查询任务,支持 state / assigneeId / taskTypeId 过滤
func (c *TaskController) List(ctx *gin.Context) {
	tasks, err := c.tasks.List(ctx.Request.Context(), &service.ListTasksFilter{
		State:      ctx.Query("state"),
		AssigneeID: ctx.Query("assigneeId"),
		TaskTypeID: ctx.Query("taskTypeId"),
	})
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, tasks)
}

// Get 获取任务
// @Summary      获取任务详情
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
// @Security     BearerAuth
func (c *TaskController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	task, err := c.tasks.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Update 修改草稿任务
func (c *TaskController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.UpdateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := c.tasks.UpdateDraft(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Delete 删除草稿任务
func (c *TaskController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.tasks.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, nil)
}

// History 任务状态历史
func (c *TaskController) History(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	history, err := c.tasks.History(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, history)
}

type previewRequest struct {
	Mode string `json:"mode"`
}

// Preview 自动分配预览
// @Summary      自动分配预览
// @Description  为全部草稿任务计算建议的作业员,不写入数据。mode 可通过查询参数或请求体指定
// @Tags         任务分配
// @Accept       json
// @Produce      json
// @Param        mode query string false "current 或 weekly"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /tasks/auto-assign-preview [post]
// @Security     BearerAuth
func (c *TaskController) Preview(ctx *gin.Context) {
	var req previewRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	raw := ctx.Query("mode")
	if raw == "" {
		raw = req.Mode
	}
	mode, err := service.ParsePreviewMode(raw, c.previewMode)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	entries, err := c.assignment.Preview(ctx.Request.Context(), mode)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, entries)
}

// Confirm 确认分配,未指定 assignerId 时使用当前用户
// @Summary      确认分配
// @Tags         任务分配
// @Accept       json
// @Produce      json
// @Param        request body service.ConfirmRequest true "分配列表"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /tasks/auto-assign-confirm [patch]
// @Security     BearerAuth
func (c *TaskController) Confirm(ctx *gin.Context) {
	var req service.ConfirmRequest
	if !bindJSON(ctx, &req) {
		return
	}
	if strings.TrimSpace(req.AssignerID) == "" {
		if identity := currentIdentity(ctx); identity != nil {
			req.AssignerID = identity.UserID
		}
	}

	result, err := c.assignment.Confirm(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

type startNextRequest struct {
	WorkerID string `json:"workerId"`
}

// StartNext 为作业员启动下一个任务,作业员调用时可省略 workerId
// @Summary      启动下一个任务
// @Tags         任务调度
// @Accept       json
// @Produce      json
// @Param        request body startNextRequest false "作业员"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /tasks/start-next [patch]
// @Security     BearerAuth
func (c *TaskController) StartNext(ctx *gin.Context) {
	var req startNextRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		if identity := currentIdentity(ctx); identity != nil && identity.Role == model.RoleWorker {
			req.WorkerID = identity.UserID
		}
	}

	task, err := c.scheduler.StartNext(ctx.Request.Context(), req.WorkerID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, task)
}

type finishRequest struct {
	Message *string `json:"message"`
}

// Complete 成功结束任务
func (c *TaskController) Complete(ctx *gin.Context) {
	c.finish(ctx, c.tasks.Complete)
}

// Fail 失败结束任务
func (c *TaskController) Fail(ctx *gin.Context) {
	c.finish(ctx, c.tasks.Fail)
}

func (c *TaskController) finish(ctx *gin.Context, op func(context.Context, string, *string) (*service.TaskView, error)) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req finishRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}

	task, err := op(ctx.Request.Context(), id, req.Message)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, task)
}

// Load 作业员当前负载,未指定 workerId 时返回全部作业员
func (c *TaskController) Load(ctx *gin.Context) {
	var workerID *string
	if ctx.Param("workerId") != "" {
		id, ok := pathID(ctx, "workerId")
		if !ok {
			return
		}
		workerID = &id
	}

	report, err := c.loads.LoadReport(ctx.Request.Context(), workerID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, report)
}

// WeekLoad 作业员本周负载
func (c *TaskController) WeekLoad(ctx *gin.Context) {
	id, ok := pathID(ctx, "workerId")
	if !ok {
		return
	}

	load, err := c.loads.WeeklyLoad(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, load)
}
