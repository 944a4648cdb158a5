package store

import (
	"context"

	"github.com/permgate/pkg/auth"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/dal"
	"github.com/permgate/services/authz/internal/model"
	"gorm.io/gorm"
)

// RoleStore 基于角色权限关联表的角色存储
type RoleStore struct {
	db    *gorm.DB
	roles *dal.BaseRepository[model.Role]
	perms *PermissionStore
}

var _ authz.RoleStore = (*RoleStore)(nil)

// NewRoleStore 创建角色存储
func NewRoleStore(db *gorm.DB) *RoleStore {
	return &RoleStore{
		db:    db,
		roles: dal.NewBaseRepository[model.Role](db),
		perms: NewPermissionStore(db),
	}
}

// activeRole 读取启用状态的角色，不存在、已禁用或已删除时返回 nil
func (s *RoleStore) activeRole(ctx context.Context, roleID string) (*model.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil || role == nil {
		return nil, err
	}
	if role.Status != model.StatusEnabled {
		return nil, nil
	}
	return role, nil
}

// FindRole 读取角色及其权限ID
func (s *RoleStore) FindRole(ctx context.Context, roleID string) (*authz.Role, error) {
	role, err := s.activeRole(ctx, roleID)
	if err != nil || role == nil {
		return nil, err
	}

	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.RolePermission{}).
		Where("role_id = ?", roleID).
		Pluck("permission_id", &ids).Error; err != nil {
		return nil, err
	}
	return &authz.Role{ID: role.ID, PermissionIDs: ids}, nil
}

// FindPermission 按ID读取权限
func (s *RoleStore) FindPermission(ctx context.Context, permissionID string) (*authz.Permission, error) {
	return s.perms.FindPermission(ctx, permissionID)
}

// FindRoleDeptIDs 读取角色自定义数据范围的部门ID
func (s *RoleStore) FindRoleDeptIDs(ctx context.Context, roleID string) ([]string, error) {
	ids := make([]string, 0)
	if err := s.db.WithContext(ctx).Model(&model.RoleDataScope{}).
		Where("role_id = ?", roleID).
		Order("id").
		Pluck("dept_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CasbinRoleStore 角色授权来自 Casbin 策略，其余数据来自数据库
type CasbinRoleStore struct {
	*RoleStore
	casbin *auth.CasbinService
}

var _ authz.RoleStore = (*CasbinRoleStore)(nil)

// NewCasbinRoleStore 创建 Casbin 角色存储
func NewCasbinRoleStore(db *gorm.DB, casbin *auth.CasbinService) *CasbinRoleStore {
	return &CasbinRoleStore{RoleStore: NewRoleStore(db), casbin: casbin}
}

// FindRole 读取角色，权限ID取自 Casbin 策略
func (s *CasbinRoleStore) FindRole(ctx context.Context, roleID string) (*authz.Role, error) {
	role, err := s.activeRole(ctx, roleID)
	if err != nil || role == nil {
		return nil, err
	}

	ids, err := s.casbin.RolePermissionIDs(roleID)
	if err != nil {
		return nil, err
	}
	return &authz.Role{ID: role.ID, PermissionIDs: ids}, nil
}
