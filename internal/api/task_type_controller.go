package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
)

// TaskTypeController 任务类型控制器
type TaskTypeController struct {
	taskTypes service.TaskTypeService
}

// NewTaskTypeController 创建任务类型控制器
func NewTaskTypeController(taskTypes service.TaskTypeService) *TaskTypeController {
	return &TaskTypeController{taskTypes: taskTypes}
}

// Create 创建任务类型
// @Summary      创建任务类型
// @Tags         任务类型
// @Accept       json
// @Produce      json
// @Param        request body service.TaskTypeRequest true "任务类型"
// @Success      201  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /task-types [post]
// @Security     BearerAuth
func (c *TaskTypeController) Create(ctx *gin.Context) {
	var req service.TaskTypeRequest
	if !bindJSON(ctx, &req) {
		return
	}
	taskType, err := c.taskTypes.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, taskType)
}

// List 查询全部任务类型
func (c *TaskTypeController) List(ctx *gin.Context) {
	taskTypes, err := c.taskTypes.List(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, taskTypes)
}

// Get 获取任务类型
func (c *TaskTypeController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	taskType, err := c.taskTypes.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, taskType)
}

// Update 更新任务类型
func (c *TaskTypeController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.TaskTypeRequest
	if !bindJSON(ctx, &req) {
		return
	}
	taskType, err := c.taskTypes.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, taskType)
}

// Delete 删除任务类型
func (c *TaskTypeController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.taskTypes.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, nil)
}
