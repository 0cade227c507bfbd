package service_test

import (
	"context"
	"testing"

	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/config"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuthService_Login 正确密码签发可校验的令牌
func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	tokens := auth.NewTokenManager(config.JWTConfig{Secret: "test-secret", Issuer: "labtask-test", ExpireMinutes: 30})
	svc := service.NewAuthService(env.store, tokens, nil)
	u := env.user(t, "alice", model.RoleWorker)

	result, err := svc.Login(context.Background(), &service.LoginRequest{UserName: " alice ", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, u.ID, result.User.ID)

	identity, err := tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, identity.UserID)
	assert.Equal(t, model.RoleWorker, identity.Role)
}

// TestAuthService_LoginRejected 用户不存在与密码错误返回相同错误
func TestAuthService_LoginRejected(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAuthService(env.store, auth.NewTokenManager(config.JWTConfig{Secret: "s"}), nil)
	env.user(t, "alice", model.RoleWorker)

	cases := []*service.LoginRequest{
		{UserName: "alice", Password: "wrong-password"},
		{UserName: "nobody", Password: "secret123"},
		{UserName: "", Password: ""},
		nil,
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
		assert.Equal(t, service.KindUnauthorized, service.KindOf(err))
	}
}
