package store

import (
	"context"

	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/dal"
	"github.com/permgate/services/authz/internal/model"
	"gorm.io/gorm"
)

// PermissionStore 权限表读取
type PermissionStore struct {
	repo *dal.BaseRepository[model.Permission]
}

var _ authz.PermissionSource = (*PermissionStore)(nil)

// NewPermissionStore 创建权限存储
func NewPermissionStore(db *gorm.DB) *PermissionStore {
	return &PermissionStore{repo: dal.NewBaseRepository[model.Permission](db)}
}

// ListAPIPermissions 读取全部 API 类型权限，按创建时间排序
//
// 已删除和已禁用的记录一并返回，由索引构建时过滤。
func (s *PermissionStore) ListAPIPermissions(ctx context.Context) ([]authz.Permission, error) {
	rows, err := s.repo.FindAll(ctx,
		map[string]interface{}{"type": model.PermissionTypeAPI},
		dal.WithUnscoped(),
		dal.WithOrder("created_at, id"),
	)
	if err != nil {
		return nil, err
	}

	perms := make([]authz.Permission, 0, len(rows))
	for i := range rows {
		perms = append(perms, toPermission(&rows[i]))
	}
	return perms, nil
}

// FindPermission 按ID读取权限，不存在时返回 nil
func (s *PermissionStore) FindPermission(ctx context.Context, permissionID string) (*authz.Permission, error) {
	row, err := s.repo.FindByID(ctx, permissionID, dal.WithUnscoped())
	if err != nil || row == nil {
		return nil, err
	}
	p := toPermission(row)
	return &p, nil
}

func toPermission(m *model.Permission) authz.Permission {
	return authz.Permission{
		ID:         m.ID,
		APIPath:    m.APIPath,
		HTTPMethod: m.HTTPMethod,
		DataScope:  authz.DataScope(m.DataScope),
		IsActive:   m.Status == model.StatusEnabled,
		IsDeleted:  m.DeletedAt.Valid,
	}
}
