package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/labtask-gin/internal/model"
)

// 写入 gin 上下文的键
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "unauthorized",
				"reason":  "MISSING_TOKEN",
				"detail":  "missing authorization header",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		identity, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "unauthorized",
				"reason":  "INVALID_TOKEN",
				"detail":  err.Error(),
			})
			return
		}

		// 将用户信息存储到上下文
		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUsername, identity.Name)
		c.Set(ContextRole, string(identity.Role))
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))

		c.Next()
	}
}

// RequireRoles 角色校验中间件,必须在 AuthMiddleware 之后使用
func RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "unauthorized",
				"reason":  "MISSING_TOKEN",
			})
			return
		}
		if !identity.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "forbidden",
				"reason":  "ROLE_NOT_ALLOWED",
				"detail":  "role " + string(identity.Role) + " is not allowed to perform this operation",
			})
			return
		}
		c.Next()
	}
}
