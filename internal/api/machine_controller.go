package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
)

// MachineController 机器控制器
type MachineController struct {
	machines service.MachineService
}

// NewMachineController 创建机器控制器
func NewMachineController(machines service.MachineService) *MachineController {
	return &MachineController{machines: machines}
}

// Create 创建机器
func (c *MachineController) Create(ctx *gin.Context) {
	var req service.MachineRequest
	if !bindJSON(ctx, &req) {
		return
	}
	machine, err := c.machines.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, machine)
}

// List 查询机器及其状态
// @Summary      机器列表
// @Tags         机器管理
// @Produce      json
// @Param        status query string false "idle 或 in-use"
// @Success      200  {object}  Response
// @Router       /machines [get]
// @Security     BearerAuth
func (c *MachineController) List(ctx *gin.Context) {
	machines, err := c.machines.List(ctx.Request.Context(), ctx.Query("status"))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, machines)
}

// Get 获取机器
func (c *MachineController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	machine, err := c.machines.Get(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, machine)
}

// Update 更新机器
func (c *MachineController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.MachineRequest
	if !bindJSON(ctx, &req) {
		return
	}
	machine, err := c.machines.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, machine)
}

// Delete 删除机器
func (c *MachineController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.machines.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, nil)
}
