package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 相对路径，或以前缀开头的完整路径
	Handler     fiber.Handler   // 处理函数
	Middlewares []fiber.Handler // 路由级中间件
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes() []Route
}

// Register 按前缀分组注册路由，返回注册的完整路径
func Register(app fiber.Router, registrars ...Registrar) []string {
	var paths []string
	for _, r := range registrars {
		prefix := strings.TrimSuffix(r.Prefix(), "/")
		g := app.Group(prefix)

		for _, route := range r.Routes() {
			path := route.Path
			if strings.HasPrefix(path, prefix+"/") {
				path = strings.TrimPrefix(path, prefix)
			}
			g.Add(route.Method, path, handlers(route)...)
			paths = append(paths, route.Method+" "+prefix+path)
		}
	}
	return paths
}

// handlers 构建处理器链（中间件 + 处理函数）
func handlers(route Route) []fiber.Handler {
	if len(route.Middlewares) == 0 {
		return []fiber.Handler{route.Handler}
	}
	hs := make([]fiber.Handler, 0, len(route.Middlewares)+1)
	hs = append(hs, route.Middlewares...)
	return append(hs, route.Handler)
}
