package registry

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"go-micro.dev/v5/registry"
)

// RouteConfig 路由配置（存储在服务元数据中）
type RouteConfig struct {
	PathPrefix   string   `json:"path_prefix"`   // 路径前缀，如 /api/v1/auth
	Methods      []string `json:"methods"`       // 允许的HTTP方法
	AuthRequired bool     `json:"auth_required"` // 是否需要认证
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name    string
	Version string
	NodeID  string
	Address string
	Routes  []RouteConfig
}

// BuildService 构建服务注册信息
func BuildService(cfg *ServiceConfig) *registry.Service {
	routesJSON, _ := json.Marshal(cfg.Routes)

	return &registry.Service{
		Name:    cfg.Name,
		Version: cfg.Version,
		Nodes: []*registry.Node{
			{
				Id:      cfg.NodeID,
				Address: cfg.Address,
				Metadata: map[string]string{
					"routes": string(routesJSON),
				},
			},
		},
	}
}

// ParseRoutes 从服务元数据中解析路由配置
func ParseRoutes(svc *registry.Service) []RouteConfig {
	var routes []RouteConfig
	for _, node := range svc.Nodes {
		routesJSON, ok := node.Metadata["routes"]
		if !ok {
			continue
		}
		var nodeRoutes []RouteConfig
		if err := json.Unmarshal([]byte(routesJSON), &nodeRoutes); err == nil {
			routes = append(routes, nodeRoutes...)
		}
	}
	return routes
}

// NewPublicRoute 创建公开路由（不需要认证）
func NewPublicRoute(pathPrefix string, methods ...string) RouteConfig {
	return RouteConfig{PathPrefix: pathPrefix, Methods: methods, AuthRequired: false}
}

// NewProtectedRoute 创建受保护路由（需要认证）
func NewProtectedRoute(pathPrefix string, methods ...string) RouteConfig {
	return RouteConfig{PathPrefix: pathPrefix, Methods: methods, AuthRequired: true}
}

// PublicRoutePatterns 汇总注册中心里所有公开路由，转换为免授权路径正则
//
// 前缀 /api/v1/auth 匹配 /api/v1/auth 及其下所有路径，不匹配 /api/v1/authx。
func PublicRoutePatterns(reg registry.Registry) ([]string, error) {
	services, err := reg.ListServices()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, svc := range services {
		full, err := reg.GetService(svc.Name)
		if err != nil {
			// 列表与查询之间服务下线
			if err == registry.ErrNotFound {
				continue
			}
			return nil, err
		}
		for _, s := range full {
			for _, route := range ParseRoutes(s) {
				if route.AuthRequired {
					continue
				}
				// 空前缀或根路径会放行全部请求，忽略
				prefix := strings.TrimRight(strings.TrimSpace(route.PathPrefix), "/")
				if prefix == "" {
					continue
				}
				seen["^"+regexp.QuoteMeta(prefix)+"(/.*)?$"] = struct{}{}
			}
		}
	}

	patterns := make([]string, 0, len(seen))
	for p := range seen {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns, nil
}

// MatchPath 检查路径是否在前缀下
func (r *RouteConfig) MatchPath(path string) bool {
	prefix := strings.TrimRight(r.PathPrefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// MatchMethod 检查方法是否允许，未配置方法时允许全部
func (r *RouteConfig) MatchMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
