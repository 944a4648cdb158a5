package model

import (
	"github.com/permgate/pkg/dal"
)

// 权限类型
const (
	PermissionTypeMenu   int8 = 1
	PermissionTypeButton int8 = 2
	PermissionTypeAPI    int8 = 3
)

// 状态
const (
	StatusDisabled int8 = 0
	StatusEnabled  int8 = 1
)

// Permission 权限模型
type Permission struct {
	dal.Model
	Name        string `gorm:"size:50;not null" json:"name"`
	Code        string `gorm:"size:100;uniqueIndex;not null" json:"code"`
	Type        int8   `gorm:"index;not null" json:"type"` // 1:菜单 2:按钮 3:API
	APIPath     string `gorm:"column:api_path;size:255" json:"apiPath"`
	HTTPMethod  string `gorm:"column:http_method;size:10" json:"httpMethod"` // GET POST PUT DELETE PATCH ALL
	DataScope   int8   `gorm:"not null" json:"dataScope"`
	Status      int8   `gorm:"not null" json:"status"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Permission) TableName() string {
	return "sys_permission"
}

// Role 角色模型
type Role struct {
	dal.Model
	Name        string `gorm:"size:50;not null" json:"name"`
	Code        string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Status      int8   `gorm:"not null" json:"status"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Role) TableName() string {
	return "sys_role"
}

// RolePermission 角色权限关联
type RolePermission struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID       string `gorm:"size:36;index:idx_role_perm;not null" json:"roleId"`
	PermissionID string `gorm:"size:36;index:idx_role_perm;not null" json:"permissionId"`
}

// TableName 表名
func (RolePermission) TableName() string {
	return "sys_role_permission"
}

// RoleDataScope 角色自定义数据范围
type RoleDataScope struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID string `gorm:"size:36;index:idx_role_dept;not null" json:"roleId"`
	DeptID string `gorm:"size:36;index:idx_role_dept;not null" json:"deptId"`
}

// TableName 表名
func (RoleDataScope) TableName() string {
	return "sys_role_data_scope"
}

// Dept 部门模型
type Dept struct {
	dal.Model
	ParentID string `gorm:"size:36;index" json:"parentId"`
	Name     string `gorm:"size:50;not null" json:"name"`
	Sort     int    `json:"sort"`
	Status   int8   `gorm:"not null" json:"status"`
}

// TableName 表名
func (Dept) TableName() string {
	return "sys_dept"
}

// All 需要迁移的模型
func All() []interface{} {
	return []interface{}{
		&Permission{},
		&Role{},
		&RolePermission{},
		&RoleDataScope{},
		&Dept{},
	}
}
