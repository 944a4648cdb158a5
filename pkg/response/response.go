package response

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/permgate/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// 响应码定义
const (
	CodeSuccess     = 0
	CodeError       = 1
	CodeServerError = 500
)

// 响应消息定义
const (
	MsgSuccess     = "success"
	MsgServerError = "server error"
)

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(Response{
		Code:    CodeError,
		Message: message,
	})
}

// ServerError 服务器错误
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return c.Status(http.StatusInternalServerError).JSON(Response{
		Code:    CodeServerError,
		Message: message,
	})
}

// FromError 按 AppError 的错误码输出，错误码即 HTTP 状态
func FromError(c *fiber.Ctx, err error) error {
	code := errors.GetCode(err)
	status := code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(Response{
		Code:    code,
		Message: errors.GetMessage(err),
	})
}
