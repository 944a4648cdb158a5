package store

import (
	"context"
	"fmt"

	"github.com/permgate/pkg/auth"
	"github.com/permgate/pkg/errors"
	"github.com/permgate/pkg/utils"
	"github.com/permgate/services/authz/internal/model"
	"gorm.io/gorm"
)

// ErrRoleNotFound 角色不存在
var ErrRoleNotFound = errors.NotFound("角色")

// GrantStore 角色授权写入
//
// casbin 不为空时角色权限同时写入 Casbin 策略。
type GrantStore struct {
	db     *gorm.DB
	casbin *auth.CasbinService
}

// NewGrantStore 创建授权写入存储
func NewGrantStore(db *gorm.DB, casbin *auth.CasbinService) *GrantStore {
	return &GrantStore{db: db, casbin: casbin}
}

func (s *GrantStore) ensureRole(tx *gorm.DB, roleID string) error {
	var count int64
	if err := tx.Model(&model.Role{}).Where("id = ?", roleID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// SetRolePermissions 覆盖角色的权限集合
func (s *GrantStore) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	ids := utils.UniqueNonZero(permissionIDs)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRole(tx, roleID); err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&model.RolePermission{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		rows := make([]model.RolePermission, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, model.RolePermission{RoleID: roleID, PermissionID: id})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return err
	}

	if s.casbin != nil {
		if err := s.casbin.SetRolePermissions(roleID, ids); err != nil {
			return fmt.Errorf("sync casbin policy: %w", err)
		}
	}
	return nil
}

// SetRoleDepts 覆盖角色自定义数据范围的部门
func (s *GrantStore) SetRoleDepts(ctx context.Context, roleID string, deptIDs []string) error {
	ids := utils.UniqueNonZero(deptIDs)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRole(tx, roleID); err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&model.RoleDataScope{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		rows := make([]model.RoleDataScope, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, model.RoleDataScope{RoleID: roleID, DeptID: id})
		}
		return tx.Create(&rows).Error
	})
}
