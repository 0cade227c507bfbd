package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	stats service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(stats service.StatisticsService) *StatisticsController {
	return &StatisticsController{stats: stats}
}

// Summary 任务统计汇总
func (c *StatisticsController) Summary(ctx *gin.Context) {
	summary, err := c.stats.Summary(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, summary)
}
