package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/errors"
	"github.com/permgate/pkg/logger"
	"github.com/permgate/pkg/response"
	"go.uber.org/zap"
)

// 上下文键
const (
	LocalUserID       = "userId"
	LocalUsername     = "username"
	LocalRoleID       = "roleId"
	LocalDeptID       = "deptId"
	LocalIsSuperuser  = "isSuperuser"
	LocalDataScope    = "dataScope"
	LocalPermissionID = "permissionId"
	LocalRequestID    = "requestId"
)

// Authorizer 请求授权决策
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Decision, error)
}

// Authorize 授权中间件
//
// 未认证返回 401，拒绝返回 403，权限数据查询失败返回 500；
// 放行时写入调用方信息和数据范围，并把决策放入 UserContext。
func Authorize(gate Authorizer, queryTokenParam string) fiber.Handler {
	if queryTokenParam == "" {
		queryTokenParam = "token"
	}

	return func(c *fiber.Ctx) error {
		d, err := gate.Authorize(c.UserContext(), authz.Request{
			Path:          c.Path(),
			Method:        c.Method(),
			Authorization: c.Get(fiber.HeaderAuthorization),
			QueryToken:    c.Query(queryTokenParam),
		})
		if err != nil {
			return response.FromError(c, errors.ErrLookupFailure.With(err))
		}

		switch d.Outcome {
		case authz.OutcomePermitted:
		case authz.OutcomeUnauthenticated:
			return response.FromError(c, errors.ErrUnauthenticated)
		default:
			return response.FromError(c, deniedError(d.Reason))
		}

		if p := d.Principal; p != nil {
			c.Locals(LocalUserID, p.UserID)
			c.Locals(LocalUsername, p.Username)
			c.Locals(LocalRoleID, p.RoleID)
			c.Locals(LocalDeptID, p.DeptID)
			c.Locals(LocalIsSuperuser, p.IsSuperuser)
		}
		c.Locals(LocalDataScope, d.Filter)
		c.Locals(LocalPermissionID, d.PermissionID)
		c.SetUserContext(authz.NewContext(c.UserContext(), d))

		return c.Next()
	}
}

func deniedError(reason authz.Reason) *errors.AppError {
	switch reason {
	case authz.ReasonNoRole:
		return errors.ErrNoRole
	case authz.ReasonUnconfigured:
		return errors.ErrPermissionUnconfigured
	default:
		return errors.ErrInsufficientPermission
	}
}

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.ServerError(c, "服务器内部错误")
			}
		}()
		return c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(LocalRequestID, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// ErrorHandler fiber 统一错误处理
func ErrorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(response.Response{Code: fe.Code, Message: fe.Message})
	}
	return response.FromError(c, err)
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) string {
	v, _ := c.Locals(LocalUserID).(string)
	return v
}

// GetUsername 从上下文获取用户名
func GetUsername(c *fiber.Ctx) string {
	v, _ := c.Locals(LocalUsername).(string)
	return v
}

// GetRoleID 从上下文获取角色ID
func GetRoleID(c *fiber.Ctx) string {
	v, _ := c.Locals(LocalRoleID).(string)
	return v
}

// GetDeptID 从上下文获取部门ID
func GetDeptID(c *fiber.Ctx) string {
	v, _ := c.Locals(LocalDeptID).(string)
	return v
}

// IsSuperuser 当前用户是否为超级管理员
func IsSuperuser(c *fiber.Ctx) bool {
	v, _ := c.Locals(LocalIsSuperuser).(bool)
	return v
}

// GetDataScope 从上下文获取数据范围过滤描述
func GetDataScope(c *fiber.Ctx) *authz.DataScopeFilter {
	v, _ := c.Locals(LocalDataScope).(*authz.DataScopeFilter)
	return v
}
