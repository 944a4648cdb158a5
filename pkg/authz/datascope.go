package authz

import (
	"context"
)

// FilterType 数据过滤类型
type FilterType string

// 数据过滤类型常量
const (
	FilterAll             FilterType = "all"
	FilterSelf            FilterType = "self"
	FilterDept            FilterType = "dept"
	FilterDeptAndChildren FilterType = "dept_and_children"
	FilterCustom          FilterType = "custom"
)

// DataScopeFilter 数据范围过滤描述，按 FilterType 只填充一个可选字段
type DataScopeFilter struct {
	Scope      DataScope  `json:"scope"`
	FilterType FilterType `json:"filterType"`
	UserID     string     `json:"userId,omitempty"`
	DeptID     string     `json:"deptId,omitempty"`
	DeptIDs    []string   `json:"deptIds"`
}

// AllFilter 不做限制的过滤描述
func AllFilter() *DataScopeFilter {
	return &DataScopeFilter{Scope: DataScopeAll, FilterType: FilterAll}
}

// Unrestricted 是否不限制数据
func (f *DataScopeFilter) Unrestricted() bool {
	return f == nil || f.FilterType == FilterAll
}

// DataScopeResolver 将数据范围解析为过滤描述
//
// 部门或角色数据缺失时不报错，退化为最严格的结果（空列表）。
type DataScopeResolver struct {
	depts DeptStore
	roles RoleStore
}

// NewDataScopeResolver 创建数据范围解析器
func NewDataScopeResolver(depts DeptStore, roles RoleStore) *DataScopeResolver {
	return &DataScopeResolver{depts: depts, roles: roles}
}

// Resolve 解析调用方在指定数据范围下的过滤描述
func (r *DataScopeResolver) Resolve(ctx context.Context, scope DataScope, p *Principal) (*DataScopeFilter, error) {
	if p == nil {
		p = &Principal{}
	}

	switch scope {
	case DataScopeAll:
		return AllFilter(), nil

	case DataScopeSelf:
		return &DataScopeFilter{Scope: scope, FilterType: FilterSelf, UserID: p.UserID}, nil

	case DataScopeDept:
		return &DataScopeFilter{Scope: scope, FilterType: FilterDept, DeptID: p.DeptID}, nil

	case DataScopeDeptAndChildren:
		ids, err := r.deptAndChildren(ctx, p.DeptID)
		if err != nil {
			return nil, err
		}
		return &DataScopeFilter{Scope: scope, FilterType: FilterDeptAndChildren, DeptIDs: ids}, nil

	case DataScopeCustom:
		ids, err := r.customDepts(ctx, p.RoleID)
		if err != nil {
			return nil, err
		}
		return &DataScopeFilter{Scope: scope, FilterType: FilterCustom, DeptIDs: ids}, nil

	default:
		// 未知范围按自定义空列表处理，不放行任何行
		return &DataScopeFilter{Scope: scope, FilterType: FilterCustom, DeptIDs: []string{}}, nil
	}
}

func (r *DataScopeResolver) deptAndChildren(ctx context.Context, deptID string) ([]string, error) {
	if deptID == "" {
		return []string{}, nil
	}

	ids := []string{deptID}
	if r.depts == nil {
		return ids, nil
	}

	descendants, err := r.depts.GetDescendantIDs(ctx, deptID)
	if err != nil {
		return nil, lookupError("get descendant depts", err)
	}
	seen := map[string]struct{}{deptID: {}}
	for _, id := range descendants {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *DataScopeResolver) customDepts(ctx context.Context, roleID string) ([]string, error) {
	if roleID == "" || r.roles == nil {
		return []string{}, nil
	}

	ids, err := r.roles.FindRoleDeptIDs(ctx, roleID)
	if err != nil {
		return nil, lookupError("find role depts", err)
	}
	if ids == nil {
		return []string{}, nil
	}
	return ids, nil
}
