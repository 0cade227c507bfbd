package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/labtask-gin/internal/auth"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthService 登录服务接口
type AuthService interface {
	Login(ctx context.Context, req *LoginRequest) (*LoginResult, error)
}

// LoginRequest 登录请求
type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      *model.UserModel `json:"user"`
}

type authService struct {
	store  *Store
	tokens *auth.TokenManager
	logger logrus.FieldLogger
}

// NewAuthService 创建登录服务
func NewAuthService(store *Store, tokens *auth.TokenManager, logger logrus.FieldLogger) AuthService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &authService{store: store, tokens: tokens, logger: logger}
}

// Login 校验用户名密码并签发令牌
// 用户不存在与密码错误返回同一个错误
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if req == nil || strings.TrimSpace(req.UserName) == "" || req.Password == "" {
		metrics.RecordLogin("", "missing_credentials")
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users.FindByName(ctx, strings.TrimSpace(req.UserName))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.RecordLogin("", "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !utils.VerifyPassword(req.Password, user.PasswordHash) {
		metrics.RecordLogin("", "bad_password")
		s.logger.WithField("user_id", user.ID).Warn("login rejected: bad password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	metrics.RecordLogin(string(user.Role), "")
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user logged in")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
