package authz

import (
	"context"

	"github.com/permgate/pkg/utils"
)

// RoleResolver 角色权限解析
type RoleResolver struct {
	store RoleStore
}

// NewRoleResolver 创建角色权限解析器
func NewRoleResolver(store RoleStore) *RoleResolver {
	return &RoleResolver{store: store}
}

// HasPermission 角色是否被授予了指定权限
//
// 角色不存在、被禁用或已删除时返回 false；权限必须仍处于启用状态。
func (r *RoleResolver) HasPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	if roleID == "" || permissionID == "" {
		return false, nil
	}

	role, err := r.store.FindRole(ctx, roleID)
	if err != nil {
		return false, lookupError("find role", err)
	}
	if role == nil {
		return false, nil
	}

	if !utils.Contains(role.PermissionIDs, permissionID) {
		return false, nil
	}

	perm, err := r.store.FindPermission(ctx, permissionID)
	if err != nil {
		return false, lookupError("find permission", err)
	}
	return perm != nil && perm.IsActive && !perm.IsDeleted, nil
}

// GetDataScope 获取权限的数据范围，权限不存在时为 DataScopeAll
func (r *RoleResolver) GetDataScope(ctx context.Context, permissionID string) (DataScope, error) {
	perm, err := r.store.FindPermission(ctx, permissionID)
	if err != nil {
		return DataScopeAll, lookupError("find permission", err)
	}
	if perm == nil {
		return DataScopeAll, nil
	}
	return perm.DataScope, nil
}
