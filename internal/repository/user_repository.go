package repository

import (
	"context"

	"github.com/mautops/labtask-gin/internal/model"
	"gorm.io/gorm"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	Create(ctx context.Context, user *model.UserModel) error
	Save(ctx context.Context, user *model.UserModel) error
	FindByID(ctx context.Context, id string) (*model.UserModel, error)
	FindByName(ctx context.Context, name string) (*model.UserModel, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.UserModel, error)
	FindAll(ctx context.Context) ([]*model.UserModel, error)
	FindByRole(ctx context.Context, role model.Role) ([]*model.UserModel, error)
	Delete(ctx context.Context, id string) error
}

// userRepository 用户仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

// Create 保存新用户
func (r *userRepository) Create(ctx context.Context, user *model.UserModel) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Save 更新用户
func (r *userRepository) Save(ctx context.Context, user *model.UserModel) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// FindByID 根据 ID 查找用户
func (r *userRepository) FindByID(ctx context.Context, id string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByName 根据用户名查找用户
func (r *userRepository) FindByName(ctx context.Context, name string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs 批量查找用户,结果以 ID 为键
func (r *userRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.UserModel, error) {
	result := make(map[string]*model.UserModel, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []*model.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, user := range users {
		result[user.ID] = user
	}
	return result, nil
}

// FindAll 按创建顺序查找所有用户
func (r *userRepository) FindAll(ctx context.Context) ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.WithContext(ctx).Order(creationOrder).Find(&users).Error
	return users, err
}

// FindByRole 按创建顺序查找指定角色的用户
func (r *userRepository) FindByRole(ctx context.Context, role model.Role) ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.WithContext(ctx).Where("role = ?", role).Order(creationOrder).Find(&users).Error
	return users, err
}

// Delete 删除用户
func (r *userRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.UserModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
