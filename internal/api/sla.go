package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SLABudgets 路由(方法 + 路由模板)对应的响应时间上限
type SLABudgets map[string]time.Duration

// DefaultSLABudgets 调度相关接口的默认上限
func DefaultSLABudgets() SLABudgets {
	return SLABudgets{
		"POST /api/v1/tasks":                      time.Second,
		"GET /api/v1/tasks":                       500 * time.Millisecond,
		"POST /api/v1/tasks/auto-assign-preview":  time.Second,
		"PATCH /api/v1/tasks/auto-assign-confirm": 2 * time.Second,
		"PATCH /api/v1/tasks/start-next":          2 * time.Second,
		"PATCH /api/v1/tasks/:id/complete":        time.Second,
		"PATCH /api/v1/tasks/:id/fail":            time.Second,
	}
}

// SLAMonitorMiddleware 超出上限的请求记录告警日志
// 响应尚未写出时同时设置 X-SLA-Violation 响应头
func SLAMonitorMiddleware(budgets SLABudgets, logger logrus.FieldLogger) gin.HandlerFunc {
	if budgets == nil {
		budgets = DefaultSLABudgets()
	}

	return func(c *gin.Context) {
		operation := c.Request.Method + " " + c.FullPath()
		budget, ok := budgets[operation]
		if !ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		if duration <= budget {
			return
		}

		if !c.Writer.Written() {
			c.Header("X-SLA-Violation", "true")
		}
		logger.WithFields(logrus.Fields{
			"operation":  operation,
			"duration":   duration.String(),
			"budget":     budget.String(),
			"request_id": c.GetString(requestIDKey),
		}).Warn("sla violated")
	}
}
