package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// statusForKind 业务错误分类对应的 HTTP 状态码
var statusForKind = map[service.ErrorKind]int{
	service.KindValidation:          http.StatusBadRequest,
	service.KindUnauthorized:        http.StatusUnauthorized,
	service.KindForbidden:           http.StatusForbidden,
	service.KindNotFound:            http.StatusNotFound,
	service.KindInvalidState:        http.StatusConflict,
	service.KindResourceUnavailable: http.StatusConflict,
}

// HandleError 将服务层错误写为 JSON 响应
// 业务错误按分类映射状态码,其余错误统一返回 500 且不暴露内部细节
func HandleError(c *gin.Context, err error) {
	if se, ok := service.AsServiceError(err); ok {
		status, known := statusForKind[se.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		Error(c, status, string(se.Kind), se.Code, err.Error())
		return
	}

	_ = c.Error(err)
	loggerFrom(c).WithError(err).WithField("path", c.FullPath()).Error("request failed")
	Error(c, http.StatusInternalServerError, "internal", "INTERNAL_ERROR", "internal server error")
}

// ErrorHandlerMiddleware 兜底处理未写响应的 c.Errors 和 panic
func ErrorHandlerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).WithField("path", c.Request.URL.Path).Error("recovered from panic")
				Error(c, http.StatusInternalServerError, "internal", "INTERNAL_ERROR", "internal server error")
			}
		}()

		c.Set(loggerKey, logger)
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			HandleError(c, c.Errors.Last().Err)
		}
	}
}

// NotFoundHandler 未匹配路由时返回 JSON 404
func NotFoundHandler(c *gin.Context) {
	Error(c, http.StatusNotFound, "not_found", "ROUTE_NOT_FOUND", c.Request.Method+" "+c.Request.URL.Path)
}
