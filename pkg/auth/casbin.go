package auth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/permgate/pkg/config"
	"github.com/permgate/pkg/utils"
	"gorm.io/gorm"
)

// grantModel 角色授权模型：角色直接持有权限ID
const grantModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

const (
	rolePrefix       = "role:"
	permissionPrefix = "perm:"
)

// CasbinService 基于 Casbin 的角色授权存储
type CasbinService struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewCasbinService 创建使用数据库存储策略的Casbin服务
func NewCasbinService(db *gorm.DB, cfg *config.CasbinConfig) (*CasbinService, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "casbin_rule"
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(grantModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load casbin policy: %w", err)
	}

	return &CasbinService{enforcer: enforcer}, nil
}

// NewMemoryCasbinService 创建不落库的Casbin服务
func NewMemoryCasbinService() (*CasbinService, error) {
	m, err := model.NewModelFromString(grantModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &CasbinService{enforcer: enforcer}, nil
}

// SetRolePermissions 覆盖角色的权限集合
func (s *CasbinService) SetRolePermissions(roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := rolePrefix + roleID
	if _, err := s.enforcer.DeletePermissionsForUser(role); err != nil {
		return fmt.Errorf("delete role policies: %w", err)
	}

	ids := utils.UniqueNonZero(permissionIDs)
	rules := make([][]string, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, []string{role, permissionPrefix + id})
	}
	if len(rules) == 0 {
		return nil
	}
	if _, err := s.enforcer.AddPolicies(rules); err != nil {
		return fmt.Errorf("add role policies: %w", err)
	}
	return nil
}

// RolePermissionIDs 获取角色持有的权限ID
func (s *CasbinService) RolePermissionIDs(roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies, err := s.enforcer.GetFilteredPolicy(0, rolePrefix+roleID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		if len(p) < 2 {
			continue
		}
		ids = append(ids, strings.TrimPrefix(p[1], permissionPrefix))
	}
	return ids, nil
}

// HasPermission 角色是否持有权限
func (s *CasbinService) HasPermission(roleID, permissionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enforcer.Enforce(rolePrefix+roleID, permissionPrefix+permissionID)
}

// DeleteRole 删除角色的全部策略
func (s *CasbinService) DeleteRole(roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.enforcer.DeletePermissionsForUser(rolePrefix + roleID)
	return err
}

// LoadPolicy 重新加载策略，用于其他进程修改后同步
func (s *CasbinService) LoadPolicy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enforcer.LoadPolicy()
}
