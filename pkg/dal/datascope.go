package dal

import (
	"context"

	"github.com/permgate/pkg/authz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DataScope 将数据范围过滤描述转换为 gorm scope
//
// nil 或 all 不追加条件；缺少用户、部门或部门列表为空时追加 1 = 0，不返回任何行。
//
//	db.Scopes(dal.DataScope(filter, "created_by", "dept_id")).Find(&orders)
func DataScope(f *authz.DataScopeFilter, userColumn, deptColumn string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Unrestricted() {
			return db
		}

		switch f.FilterType {
		case authz.FilterSelf:
			if f.UserID == "" {
				return denyAll(db)
			}
			return db.Where(clause.Eq{Column: clause.Column{Name: userColumn}, Value: f.UserID})
		case authz.FilterDept:
			if f.DeptID == "" {
				return denyAll(db)
			}
			return db.Where(clause.Eq{Column: clause.Column{Name: deptColumn}, Value: f.DeptID})
		case authz.FilterDeptAndChildren, authz.FilterCustom:
			if len(f.DeptIDs) == 0 {
				return denyAll(db)
			}
			values := make([]interface{}, len(f.DeptIDs))
			for i, id := range f.DeptIDs {
				values[i] = id
			}
			return db.Where(clause.IN{Column: clause.Column{Name: deptColumn}, Values: values})
		default:
			return denyAll(db)
		}
	}
}

// DataScopeFromContext 读取请求上下文中的过滤描述，上下文中没有授权决策时不返回任何行
func DataScopeFromContext(ctx context.Context, userColumn, deptColumn string) func(*gorm.DB) *gorm.DB {
	if _, ok := authz.FromContext(ctx); !ok {
		return denyAll
	}
	return DataScope(authz.FilterFromContext(ctx), userColumn, deptColumn)
}

func denyAll(db *gorm.DB) *gorm.DB {
	return db.Where("1 = 0")
}
