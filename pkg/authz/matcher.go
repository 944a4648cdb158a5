package authz

import (
	"context"
	"strings"
)

// Match 在索引中查找请求路径与方法对应的权限ID
//
// 匹配顺序：精确路径+方法，精确路径+ALL，占位符模式（方法相同或ALL）。
// 路径末尾的 "/" 不做归一化，/users 与 /users/ 是不同的路径。
func (s *IndexSnapshot) Match(path, method string) (string, bool) {
	if s == nil {
		return "", false
	}
	method = NormalizeMethod(method)

	if id, ok := s.entries[indexKey{path: path, method: method}]; ok {
		return id, true
	}
	if id, ok := s.entries[indexKey{path: path, method: MethodAll}]; ok {
		return id, true
	}

	for _, p := range s.patterns[strings.Count(path, "/")] {
		if !p.re.MatchString(path) {
			continue
		}
		if id, ok := s.entries[indexKey{path: p.path, method: method}]; ok {
			return id, true
		}
		if id, ok := s.entries[indexKey{path: p.path, method: MethodAll}]; ok {
			return id, true
		}
	}

	return "", false
}

// PermissionLookup 请求到权限ID的解析接口
type PermissionLookup interface {
	// Lookup 返回匹配的权限ID；found 为 false 表示该接口未配置权限
	Lookup(ctx context.Context, path, method string) (permissionID string, found bool, err error)
}

// PathMatcher 基于 PermissionIndex 的路径匹配器
type PathMatcher struct {
	index *PermissionIndex
}

// NewPathMatcher 创建路径匹配器
func NewPathMatcher(index *PermissionIndex) *PathMatcher {
	return &PathMatcher{index: index}
}

// Lookup 确保索引已加载后进行匹配
func (m *PathMatcher) Lookup(ctx context.Context, path, method string) (string, bool, error) {
	snap, err := m.index.Snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := snap.Match(path, method)
	return id, ok, nil
}
