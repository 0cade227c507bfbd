package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/service"
)

// AuthController 登录控制器
type AuthController struct {
	auth service.AuthService
}

// NewAuthController 创建登录控制器
func NewAuthController(auth service.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// Login 用户名密码登录
// @Summary      登录
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request body service.LoginRequest true "用户名和密码"
// @Success      200  {object}  Response
// @Failure      401  {object}  ErrorResponse
// @Router       /auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(ctx, &req) {
		return
	}
	result, err := c.auth.Login(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Me 当前登录用户
func (c *AuthController) Me(ctx *gin.Context) {
	identity := currentIdentity(ctx)
	if identity == nil {
		HandleError(ctx, service.ErrInvalidCredentials)
		return
	}
	Success(ctx, identity)
}
