package grant

import (
	"context"

	"github.com/permgate/pkg/auth"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/broadcast"
	"github.com/permgate/pkg/logger"
	"github.com/permgate/services/authz/internal/store"
	"go.uber.org/zap"
)

// invalidation 失效广播内容
type invalidation struct {
	Reason string `json:"reason"`
	RoleID string `json:"roleId,omitempty"`
}

// Options 授权服务依赖，除 Grants 和 Index 外均可为空
type Options struct {
	Grants      *store.GrantStore
	Index       *authz.PermissionIndex
	Depts       *store.CachedDeptStore
	Casbin      *auth.CasbinService
	Broadcaster *broadcast.Broadcaster
}

// Service 角色授权维护与缓存失效
type Service struct {
	grants      *store.GrantStore
	index       *authz.PermissionIndex
	depts       *store.CachedDeptStore
	casbin      *auth.CasbinService
	broadcaster *broadcast.Broadcaster
}

// NewService 创建授权服务，并订阅其他节点的失效广播
func NewService(opts Options) *Service {
	s := &Service{
		grants:      opts.Grants,
		index:       opts.Index,
		depts:       opts.Depts,
		casbin:      opts.Casbin,
		broadcaster: opts.Broadcaster,
	}
	if s.broadcaster != nil {
		s.broadcaster.Subscribe(broadcast.TopicAuthzInvalidate, s.HandleRemote)
	}
	return s
}

// SetRolePermissions 覆盖角色权限并使缓存失效
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if err := s.grants.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	logger.Info("角色权限已更新", zap.String("roleId", roleID), zap.Int("permissions", len(permissionIDs)))
	s.invalidate(ctx, invalidation{Reason: "role_permissions", RoleID: roleID})
	return nil
}

// SetRoleDepts 覆盖角色自定义数据范围并使缓存失效
func (s *Service) SetRoleDepts(ctx context.Context, roleID string, deptIDs []string) error {
	if err := s.grants.SetRoleDepts(ctx, roleID, deptIDs); err != nil {
		return err
	}
	logger.Info("角色数据范围已更新", zap.String("roleId", roleID), zap.Int("depts", len(deptIDs)))
	s.invalidate(ctx, invalidation{Reason: "role_depts", RoleID: roleID})
	return nil
}

// Refresh 使缓存失效后立即重建权限索引
func (s *Service) Refresh(ctx context.Context) (*authz.IndexSnapshot, error) {
	s.invalidate(ctx, invalidation{Reason: "refresh"})
	return s.index.Refresh(ctx)
}

// invalidate 本地失效并通知其他节点，广播失败只记录日志
func (s *Service) invalidate(ctx context.Context, inv invalidation) {
	s.invalidateLocal()

	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.PublishJSON(ctx, broadcast.TopicAuthzInvalidate, inv); err != nil {
		logger.Warn("权限失效广播失败", zap.String("reason", inv.Reason), zap.Error(err))
		return
	}
	logger.Debug("权限失效已广播", zap.String("reason", inv.Reason), zap.String("roleId", inv.RoleID))
}

// HandleRemote 处理其他节点的失效广播
func (s *Service) HandleRemote(ctx context.Context, msg *broadcast.Message) {
	if s.casbin != nil {
		if err := s.casbin.LoadPolicy(); err != nil {
			logger.Error("重新加载Casbin策略失败", zap.Error(err))
		}
	}
	s.invalidateLocal()
	logger.Info("收到权限失效广播", zap.String("from", msg.NodeID))
}

func (s *Service) invalidateLocal() {
	s.index.Invalidate()
	if s.depts != nil {
		s.depts.Flush()
	}
}

// Index 权限索引
func (s *Service) Index() *authz.PermissionIndex {
	return s.index
}
