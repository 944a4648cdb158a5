package errors

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	ErrUnauthorized   = New(401, "未授权")
	ErrForbidden      = New(403, "禁止访问")
	ErrBadRequest     = New(400, "请求错误")
	ErrNotFound       = New(404, "资源不存在")
	ErrInternalServer = New(500, "服务器内部错误")
	ErrTokenExpired   = New(401, "令牌已过期")
	ErrTokenInvalid   = New(401, "令牌无效")
)

// 授权相关错误
var (
	ErrUnauthenticated        = New(401, "未登录或登录已失效")
	ErrNoRole                 = New(403, "未分配角色")
	ErrInsufficientPermission = New(403, "没有访问权限")
	ErrPermissionUnconfigured = New(403, "接口未配置权限")
	ErrLookupFailure          = New(500, "权限数据查询失败")
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 错误码和消息相同即视为同一错误，包装后的预定义错误仍可匹配
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// With 基于预定义错误附加原因
func (e *AppError) With(err error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Err: err}
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    400,
		Message: message,
	}
}

// NotFound 创建未找到错误
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    404,
		Message: fmt.Sprintf("%s不存在", resource),
	}
}

// Internal 创建内部错误
func Internal(message string) *AppError {
	if message == "" {
		message = "服务器内部错误"
	}
	return &AppError{
		Code:    500,
		Message: message,
	}
}
