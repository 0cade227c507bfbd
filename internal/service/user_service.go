package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/mautops/labtask-gin/internal/metrics"
	"github.com/mautops/labtask-gin/internal/model"
	"github.com/mautops/labtask-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxUserNameLength 用户名最大长度,与 users.name 列宽一致
const maxUserNameLength = 64

// UserService 用户服务接口
type UserService interface {
	Create(ctx context.Context, req *CreateUserRequest) (*model.UserModel, error)
	List(ctx context.Context, role string) ([]*model.UserModel, error)
	Get(ctx context.Context, id string) (*model.UserModel, error)
	Update(ctx context.Context, id string, req *UpdateUserRequest) (*model.UserModel, error)
	Delete(ctx context.Context, id string) error
	AddTaskType(ctx context.Context, id, taskTypeID string) (*model.UserModel, error)
	RemoveTaskType(ctx context.Context, id, taskTypeID string) (*model.UserModel, error)
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	UserName      string   `json:"userName"`
	Password      string   `json:"password"`
	UserRole      string   `json:"userRole"`
	UserTaskTypes []string `json:"userTaskTypes"`
}

// UpdateUserRequest 更新用户请求,未提供的字段保持不变
type UpdateUserRequest struct {
	UserName      *string   `json:"userName"`
	Password      *string   `json:"password"`
	UserRole      *string   `json:"userRole"`
	UserTaskTypes *[]string `json:"userTaskTypes"`
}

type userService struct {
	store  *Store
	logger logrus.FieldLogger
	now    Clock
}

// NewUserService 创建用户服务
func NewUserService(store *Store, logger logrus.FieldLogger, now Clock) UserService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &userService{store: store, logger: logger, now: clockOrDefault(now)}
}

func parseRole(value string) (model.Role, error) {
	role := model.Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
	return role, nil
}

// skillsFrom 去重并校验技能列表中的任务类型均存在
func (s *userService) skillsFrom(ctx context.Context, store *Store, ids []string) (datatypes.JSONSlice[string], error) {
	normalized, err := utils.NormalizeIDs(ids)
	if err != nil {
		return nil, invalidInput("userTaskTypes", err)
	}
	ok, err := store.TaskTypes.ExistAll(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to check task types: %w", err)
	}
	if !ok {
		return nil, ErrUnknownTaskType
	}
	return datatypes.JSONSlice[string](normalized), nil
}

// Create 创建用户
func (s *userService) Create(ctx context.Context, req *CreateUserRequest) (*model.UserModel, error) {
	if req == nil {
		return nil, invalidInput("userName", utils.ErrEmptyName)
	}
	name, err := utils.ValidateName(req.UserName, 1, maxUserNameLength)
	if err != nil {
		return nil, invalidInput("userName", err)
	}
	role, err := parseRole(req.UserRole)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, invalidInput("password", err)
	}
	skills, err := s.skillsFrom(ctx, s.store, req.UserTaskTypes)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Users.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check user name: %w", err)
	}

	now := s.now()
	user := &model.UserModel{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		TaskTypes:    skills,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	metrics.RecordCatalogOperation("user", "create")
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "name": user.Name, "role": user.Role}).Info("user created")
	return user, nil
}

// List 查询用户,role 非空时按角色过滤
func (s *userService) List(ctx context.Context, role string) ([]*model.UserModel, error) {
	if role == "" {
		users, err := s.store.Users.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		return users, nil
	}
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	users, err := s.store.Users.FindByRole(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Get 获取用户
func (s *userService) Get(ctx context.Context, id string) (*model.UserModel, error) {
	user, err := s.store.Users.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, id)
	}
	return user, nil
}

// Update 更新用户;作业员仍有待执行或进行中的任务时不允许变更角色
func (s *userService) Update(ctx context.Context, id string, req *UpdateUserRequest) (*model.UserModel, error) {
	var updated *model.UserModel
	err := s.store.transaction(ctx, func(tx *Store) error {
		user, err := tx.Users.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, ErrUserNotFound, id)
		}
		updated = user
		if req == nil {
			return nil
		}

		if req.UserName != nil {
			name, err := utils.ValidateName(*req.UserName, 1, maxUserNameLength)
			if err != nil {
				return invalidInput("userName", err)
			}
			if name != user.Name {
				if _, err := tx.Users.FindByName(ctx, name); err == nil {
					return fmt.Errorf("%w: %s", ErrDuplicateName, name)
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to check user name: %w", err)
				}
			}
			user.Name = name
		}
		if req.Password != nil {
			hash, err := utils.HashPassword(*req.Password)
			if err != nil {
				return invalidInput("password", err)
			}
			user.PasswordHash = hash
		}
		if req.UserRole != nil {
			role, err := parseRole(*req.UserRole)
			if err != nil {
				return err
			}
			if user.Role == model.RoleWorker && role != model.RoleWorker {
				if err := ensureNoActiveTasks(ctx, tx, user.ID); err != nil {
					return err
				}
			}
			user.Role = role
		}
		if req.UserTaskTypes != nil {
			skills, err := s.skillsFrom(ctx, tx, *req.UserTaskTypes)
			if err != nil {
				return err
			}
			user.TaskTypes = skills
		}

		user.UpdatedAt = s.now()
		if err := tx.Users.Save(ctx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrDuplicateName, user.Name)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCatalogOperation("user", "update")
	return updated, nil
}

// Delete 删除用户,仍有待执行或进行中的任务时拒绝
func (s *userService) Delete(ctx context.Context, id string) error {
	err := s.store.transaction(ctx, func(tx *Store) error {
		if _, err := tx.Users.FindByID(ctx, id); err != nil {
			return notFoundOr(err, ErrUserNotFound, id)
		}
		if err := ensureNoActiveTasks(ctx, tx, id); err != nil {
			return err
		}
		return tx.Users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	metrics.RecordCatalogOperation("user", "delete")
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

// AddTaskType 为用户增加技能,已具备时不做修改
func (s *userService) AddTaskType(ctx context.Context, id, taskTypeID string) (*model.UserModel, error) {
	return s.changeSkills(ctx, id, taskTypeID, func(skills []string) []string {
		if slices.Contains(skills, taskTypeID) {
			return skills
		}
		return append(skills, taskTypeID)
	})
}

// RemoveTaskType 移除用户技能,未具备时不做修改
func (s *userService) RemoveTaskType(ctx context.Context, id, taskTypeID string) (*model.UserModel, error) {
	return s.changeSkills(ctx, id, taskTypeID, func(skills []string) []string {
		return slices.DeleteFunc(skills, func(s string) bool { return s == taskTypeID })
	})
}

func (s *userService) changeSkills(ctx context.Context, id, taskTypeID string, change func([]string) []string) (*model.UserModel, error) {
	if err := utils.ValidateID(taskTypeID); err != nil {
		return nil, invalidInput("taskTypeId", err)
	}

	var updated *model.UserModel
	err := s.store.transaction(ctx, func(tx *Store) error {
		user, err := tx.Users.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, ErrUserNotFound, id)
		}
		if _, err := tx.TaskTypes.FindByID(ctx, taskTypeID); err != nil {
			return notFoundOr(err, ErrTaskTypeNotFound, taskTypeID)
		}

		skills := change(slices.Clone([]string(user.TaskTypes)))
		user.TaskTypes = datatypes.JSONSlice[string](skills)
		user.UpdatedAt = s.now()
		if err := tx.Users.Save(ctx, user); err != nil {
			return fmt.Errorf("failed to update user skills: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCatalogOperation("user", "update")
	return updated, nil
}

// ensureNoActiveTasks 用户名下仍有待执行或进行中的任务时返回 ErrUserHasActiveTasks
func ensureNoActiveTasks(ctx context.Context, store *Store, userID string) error {
	counts, err := store.Tasks.CountByAssignees(ctx, []string{userID}, activeStates...)
	if err != nil {
		return fmt.Errorf("failed to count active tasks: %w", err)
	}
	if n := counts[userID]; n > 0 {
		return fmt.Errorf("%w: %d task(s)", ErrUserHasActiveTasks, n)
	}
	return nil
}
