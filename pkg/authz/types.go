package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// HTTP方法常量
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
	MethodAll    = "ALL" // 匹配任意方法
)

// ConcreteMethods ALL 权限在重建索引时展开的具体方法
var ConcreteMethods = []string{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// NormalizeMethod 统一HTTP方法的大小写
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

func isKnownMethod(method string) bool {
	if method == MethodAll {
		return true
	}
	for _, m := range ConcreteMethods {
		if m == method {
			return true
		}
	}
	return false
}

// DataScope 数据权限范围
type DataScope int

// 数据权限范围常量
const (
	DataScopeAll             DataScope = 0 // 全部数据
	DataScopeSelf            DataScope = 1 // 仅本人数据
	DataScopeDept            DataScope = 2 // 本部门数据
	DataScopeDeptAndChildren DataScope = 3 // 本部门及下级部门数据
	DataScopeCustom          DataScope = 4 // 自定义部门数据
)

// Valid 是否为已知的数据范围
func (s DataScope) Valid() bool {
	return s >= DataScopeAll && s <= DataScopeCustom
}

func (s DataScope) String() string {
	switch s {
	case DataScopeAll:
		return "all"
	case DataScopeSelf:
		return "self"
	case DataScopeDept:
		return "dept"
	case DataScopeDeptAndChildren:
		return "dept_and_children"
	case DataScopeCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Permission API权限记录
type Permission struct {
	ID         string    `json:"id"`
	APIPath    string    `json:"apiPath"`
	HTTPMethod string    `json:"httpMethod"`
	DataScope  DataScope `json:"dataScope"`
	IsActive   bool      `json:"isActive"`
	IsDeleted  bool      `json:"isDeleted"`
}

// Role 角色及其授予的权限ID
type Role struct {
	ID            string   `json:"id"`
	PermissionIDs []string `json:"permissionIds"`
}

// Principal 认证后的调用方
type Principal struct {
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	RoleID      string `json:"roleId,omitempty"`
	DeptID      string `json:"deptId,omitempty"`
	IsSuperuser bool   `json:"isSuperuser"`
}

// HasRole 是否分配了角色
func (p *Principal) HasRole() bool {
	return p != nil && p.RoleID != ""
}

// PermissionSource 权限表读取接口，用于重建索引
type PermissionSource interface {
	// ListAPIPermissions 返回所有API类型的权限，顺序即重建时的迭代顺序
	ListAPIPermissions(ctx context.Context) ([]Permission, error)
}

// RoleStore 角色数据读取接口
type RoleStore interface {
	// FindRole 查找启用且未删除的角色，不存在时返回 nil, nil
	FindRole(ctx context.Context, roleID string) (*Role, error)
	// FindPermission 查找权限，不存在时返回 nil, nil
	FindPermission(ctx context.Context, permissionID string) (*Permission, error)
	// FindRoleDeptIDs 查找角色关联的自定义部门ID
	FindRoleDeptIDs(ctx context.Context, roleID string) ([]string, error)
}

// DeptStore 部门层级读取接口
type DeptStore interface {
	// GetDescendantIDs 返回部门的所有后代部门ID（不含自身）
	GetDescendantIDs(ctx context.Context, deptID string) ([]string, error)
}

// Authenticator 凭证校验接口
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Principal, error)
}

// ErrLookupFailure 存储查询失败，调用方应按基础设施错误处理
var ErrLookupFailure = errors.New("authz: lookup failure")

// LookupError 角色、权限或部门查询失败
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("authz: %s: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrLookupFailure) 成立
func (e *LookupError) Is(target error) bool {
	return target == ErrLookupFailure
}

func lookupError(op string, err error) error {
	var le *LookupError
	if errors.As(err, &le) {
		return err
	}
	return &LookupError{Op: op, Err: err}
}
