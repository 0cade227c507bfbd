package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
)

// UserController 用户控制器
type UserController struct {
	users service.UserService
	loads service.LoadService
}

// NewUserController 创建用户控制器
func NewUserController(users service.UserService, loads service.LoadService) *UserController {
	return &UserController{users: users, loads: loads}
}

// Create 创建用户
func (c *UserController) Create(ctx *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(ctx, &req) {
		return
	}
	user, err := c.users.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, user)
}

// List 查询用户,支持 role 过滤
func (c *UserController) List(ctx *gin.Context) {
	users, err := c.users.List(ctx.Request.Context(), ctx.Query("role"))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, users)
}

// Get 获取用户
func (c *UserController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user, err := c.users.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, user)
}

// Update 更新用户
func (c *UserController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(ctx, &req) {
		return
	}
	user, err := c.users.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, user)
}

// Delete 删除用户
func (c *UserController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.users.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, nil)
}

// WithTasks 作业员及其技能和任务,可指定单个作业员
func (c *UserController) WithTasks(ctx *gin.Context) {
	var workerID *string
	if ctx.Param("id") != "" {
		id, ok := pathID(ctx, "id")
		if !ok {
			return
		}
		workerID = &id
	}
	workers, err := c.loads.WorkersWithTasks(ctx.Request.Context(), workerID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, workers)
}

type skillRequest struct {
	TaskTypeID string `json:"taskTypeId" binding:"required"`
}

// AddTaskType 增加技能
func (c *UserController) AddTaskType(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req skillRequest
	if !bindJSON(ctx, &req) {
		return
	}
	user, err := c.users.AddTaskType(ctx.Request.Context(), id, req.TaskTypeID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, user)
}

// RemoveTaskType 移除技能
func (c *UserController) RemoveTaskType(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req skillRequest
	if !bindJSON(ctx, &req) {
		return
	}
	user, err := c.users.RemoveTaskType(ctx.Request.Context(), id, req.TaskTypeID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, user)
}
