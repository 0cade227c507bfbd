package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens() *auth.TokenManager {
	return auth.NewTokenManager(config.JWTConfig{Secret: "test-secret", Issuer: "labtask-test", ExpireMinutes: 5})
}

var worker = &model.UserModel{ID: "u-worker", Name: "bob", Role: model.RoleWorker}

// TestTokenManager_IssueValidate 测试签发和校验
func TestTokenManager_IssueValidate(t *testing.T) {
	tokens := newTokens()
	token, expiresAt, err := tokens.Issue(worker)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	identity, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-worker", identity.UserID)
	assert.Equal(t, "bob", identity.Name)
	assert.Equal(t, model.RoleWorker, identity.Role)
	assert.True(t, identity.HasRole(model.RoleAdmin, model.RoleWorker))
	assert.False(t, identity.HasRole(model.RoleAdmin))
}

// TestTokenManager_RejectsForeignTokens 测试拒绝非法令牌
func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	tokens := newTokens()

	other := auth.NewTokenManager(config.JWTConfig{Secret: "other-secret", Issuer: "labtask-test", ExpireMinutes: 5})
	token, _, err := other.Issue(worker)
	require.NoError(t, err)
	_, err = tokens.Validate(token)
	assert.Error(t, err, "wrong secret")

	wrongIssuer := auth.NewTokenManager(config.JWTConfig{Secret: "test-secret", Issuer: "someone-else", ExpireMinutes: 5})
	token, _, err = wrongIssuer.Issue(worker)
	require.NoError(t, err)
	_, err = tokens.Validate(token)
	assert.Error(t, err, "wrong issuer")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Name: "bob",
		Role: model.RoleWorker,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-worker",
			Issuer:    "labtask-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = tokens.Validate(signed)
	assert.Error(t, err, "expired")

	_, err = tokens.Validate("not-a-token")
	assert.Error(t, err)
}

func setupRouter(tokens *auth.TokenManager, roles ...model.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(auth.AuthMiddleware(tokens))
	router.GET("/whoami", auth.RequireRoles(roles...), func(c *gin.Context) {
		identity, _ := auth.IdentityFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": identity.UserID, "gin_user": c.GetString(auth.ContextUserID)})
	})
	return router
}

// TestAuthMiddleware 测试认证中间件
func TestAuthMiddleware(t *testing.T) {
	tokens := newTokens()
	router := setupRouter(tokens, model.RoleWorker, model.RoleAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := tokens.Issue(worker)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-worker","gin_user":"u-worker"}`, w.Body.String())
}

// TestRequireRoles 测试角色校验
func TestRequireRoles(t *testing.T) {
	tokens := newTokens()
	router := setupRouter(tokens, model.RoleAdmin, model.RoleLeader)

	token, _, err := tokens.Issue(worker)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ROLE_NOT_ALLOWED")
}
