package api

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/utils"
)

// bindJSON 解析请求体,失败时写入 400 响应并返回 false
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		BadRequest(c, err.Error())
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, err.Error())
		return false
	}
	return true
}

// pathID 读取并校验路径中的 ID 参数
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if err := utils.ValidateID(id); err != nil {
		BadRequest(c, name+": "+err.Error())
		return "", false
	}
	return id, true
}

// currentIdentity 当前调用者,未认证时返回 nil
func currentIdentity(c *gin.Context) *auth.Identity {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		return nil
	}
	return identity
}
