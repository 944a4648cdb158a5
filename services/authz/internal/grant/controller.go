package grant

import (
	"github.com/gofiber/fiber/v2"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/errors"
	"github.com/permgate/pkg/response"
	"github.com/permgate/pkg/router"
)

// SetPermissionsRequest 设置角色权限请求
type SetPermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

// SetDeptsRequest 设置角色数据范围请求
type SetDeptsRequest struct {
	DeptIDs []string `json:"deptIds"`
}

// IndexResponse 索引概况
type IndexResponse struct {
	Entries  int                `json:"entries"`
	Patterns int                `json:"patterns"`
	BuiltAt  string             `json:"builtAt"`
	Items    []authz.IndexEntry `json:"items,omitempty"`
}

// MeResponse 当前调用方的授权信息
type MeResponse struct {
	Principal    *authz.Principal       `json:"principal"`
	PermissionID string                 `json:"permissionId,omitempty"`
	Filter       *authz.DataScopeFilter `json:"filter"`
}

// Controller 授权管理控制器
type Controller struct {
	svc *Service
}

var _ router.Registrar = (*Controller)(nil)

// NewController 创建授权管理控制器
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/authz"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodPost, Path: "/cache/refresh", Handler: c.Refresh},
		{Method: fiber.MethodPut, Path: "/roles/:id/permissions", Handler: c.SetPermissions},
		{Method: fiber.MethodPut, Path: "/roles/:id/depts", Handler: c.SetDepts},
		{Method: fiber.MethodGet, Path: "/me", Handler: c.Me},
		{Method: fiber.MethodGet, Path: "/index", Handler: c.Index},
	}
}

// Refresh 刷新权限缓存
// @Summary 刷新权限缓存
// @Tags 授权管理
// @Produce json
// @Success 200 {object} response.Response
// @Router /authz/cache/refresh [post]
func (c *Controller) Refresh(ctx *fiber.Ctx) error {
	snap, err := c.svc.Refresh(ctx.UserContext())
	if err != nil {
		return response.FromError(ctx, errors.ErrLookupFailure.With(err))
	}
	return response.Success(ctx, summary(snap, false))
}

// SetPermissions 设置角色权限
// @Summary 设置角色权限
// @Tags 授权管理
// @Accept json
// @Produce json
// @Param id path string true "角色ID"
// @Param request body SetPermissionsRequest true "权限ID列表"
// @Success 200 {object} response.Response
// @Router /authz/roles/{id}/permissions [put]
func (c *Controller) SetPermissions(ctx *fiber.Ctx) error {
	roleID := ctx.Params("id")
	if roleID == "" {
		return response.BadRequest(ctx, "invalid role id")
	}

	var req SetPermissionsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, err.Error())
	}

	if err := c.svc.SetRolePermissions(ctx.UserContext(), roleID, req.PermissionIDs); err != nil {
		return mutationError(ctx, err)
	}
	return response.SuccessWithMessage(ctx, "角色权限已更新", nil)
}

// SetDepts 设置角色自定义数据范围
// @Summary 设置角色数据范围
// @Tags 授权管理
// @Accept json
// @Produce json
// @Param id path string true "角色ID"
// @Param request body SetDeptsRequest true "部门ID列表"
// @Success 200 {object} response.Response
// @Router /authz/roles/{id}/depts [put]
func (c *Controller) SetDepts(ctx *fiber.Ctx) error {
	roleID := ctx.Params("id")
	if roleID == "" {
		return response.BadRequest(ctx, "invalid role id")
	}

	var req SetDeptsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, err.Error())
	}

	if err := c.svc.SetRoleDepts(ctx.UserContext(), roleID, req.DeptIDs); err != nil {
		return mutationError(ctx, err)
	}
	return response.SuccessWithMessage(ctx, "角色数据范围已更新", nil)
}

// Me 当前调用方的身份与数据范围
// @Summary 当前授权信息
// @Tags 授权管理
// @Produce json
// @Success 200 {object} response.Response
// @Router /authz/me [get]
func (c *Controller) Me(ctx *fiber.Ctx) error {
	d, ok := authz.FromContext(ctx.UserContext())
	if !ok || d.Principal == nil {
		return response.FromError(ctx, errors.ErrUnauthenticated)
	}
	return response.Success(ctx, MeResponse{
		Principal:    d.Principal,
		PermissionID: d.PermissionID,
		Filter:       d.Filter,
	})
}

// Index 查看当前权限索引
// @Summary 权限索引
// @Tags 授权管理
// @Produce json
// @Success 200 {object} response.Response
// @Router /authz/index [get]
func (c *Controller) Index(ctx *fiber.Ctx) error {
	snap, err := c.svc.Index().Snapshot(ctx.UserContext())
	if err != nil {
		return response.FromError(ctx, errors.ErrLookupFailure.With(err))
	}
	return response.Success(ctx, summary(snap, true))
}

func summary(snap *authz.IndexSnapshot, items bool) IndexResponse {
	resp := IndexResponse{
		Entries:  snap.Len(),
		Patterns: snap.PatternCount(),
		BuiltAt:  snap.BuiltAt().Format("2006-01-02 15:04:05"),
	}
	if items {
		resp.Items = snap.Entries()
	}
	return resp
}

func mutationError(ctx *fiber.Ctx, err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return response.FromError(ctx, err)
	}
	return response.FromError(ctx, errors.ErrInternalServer.With(err))
}
