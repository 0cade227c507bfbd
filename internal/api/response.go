package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code" example:"0"`          // 状态码: 0 表示成功
	Message string      `json:"message" example:"success"` // 响应消息
	Data    interface{} `json:"data"`                      // 响应数据
}

// ErrorResponse 错误响应格式
type ErrorResponse struct {
	Code    int    `json:"code" example:"409"`                     // HTTP 状态码
	Message string `json:"message" example:"resource_unavailable"` // 错误分类
	Reason  string `json:"reason,omitempty" example:"WORKER_BUSY"` // 机器可读的错误码
	Detail  string `json:"detail,omitempty"`                       // 错误详情
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message, reason, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Code:    statusCode,
		Message: message,
		Reason:  reason,
		Detail:  detail,
	})
}

// BadRequest 请求体或参数无法解析
func BadRequest(c *gin.Context, detail string) {
	Error(c, http.StatusBadRequest, "validation", "INVALID_REQUEST", detail)
}
