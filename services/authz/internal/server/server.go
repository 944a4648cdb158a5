package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/permgate/pkg/auth"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/broadcast"
	"github.com/permgate/pkg/config"
	"github.com/permgate/pkg/logger"
	"github.com/permgate/pkg/middleware"
	pkgRegistry "github.com/permgate/pkg/registry"
	"github.com/permgate/pkg/response"
	"github.com/permgate/pkg/router"
	"github.com/permgate/services/authz/internal/grant"
	"github.com/permgate/services/authz/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 角色授权来源
const (
	GrantBackendDB     = "db"
	GrantBackendCasbin = "casbin"
)

// Deps 服务依赖，Broadcaster 和 Registry 可为空
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Broadcaster *broadcast.Broadcaster
	Registry    registry.Registry
}

// Server 授权服务
type Server struct {
	App     *fiber.App
	Gate    *authz.AuthorizationGate
	Index   *authz.PermissionIndex
	Service *grant.Service
	JWT     *auth.JWTManager

	depts *store.CachedDeptStore
}

// New 组装授权网关与管理接口
func New(deps Deps) (*Server, error) {
	cfg := deps.Config

	allowPatterns := append([]string{}, cfg.Authz.AllowPatterns...)
	if deps.Registry != nil {
		public, err := pkgRegistry.PublicRoutePatterns(deps.Registry)
		if err != nil {
			logger.Warn("读取注册中心公开路由失败", zap.Error(err))
		} else {
			allowPatterns = append(allowPatterns, public...)
			logger.Info("已加载注册中心公开路由", zap.Int("count", len(public)))
		}
	}

	allowList, err := authz.NewPathSet(cfg.Authz.AllowList, allowPatterns)
	if err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	tokenPaths, tokenPatterns := cfg.Authz.SplitQueryTokenPaths()
	queryTokenPaths, err := authz.NewPathSet(tokenPaths, tokenPatterns)
	if err != nil {
		return nil, fmt.Errorf("query token paths: %w", err)
	}

	var (
		roles  authz.RoleStore
		casbin *auth.CasbinService
	)
	switch cfg.Authz.GrantBackend {
	case "", GrantBackendDB:
		roles = store.NewRoleStore(deps.DB)
	case GrantBackendCasbin:
		casbin, err = auth.NewCasbinService(deps.DB, &cfg.Casbin)
		if err != nil {
			return nil, err
		}
		roles = store.NewCasbinRoleStore(deps.DB, casbin)
	default:
		return nil, fmt.Errorf("unsupported grant backend: %s", cfg.Authz.GrantBackend)
	}

	s := &Server{}
	var depts authz.DeptStore = store.NewDeptStore(deps.DB)
	if cfg.Authz.DeptCacheTTL > 0 {
		s.depts = store.NewCachedDeptStore(depts, time.Duration(cfg.Authz.DeptCacheTTL)*time.Second)
		depts = s.depts
	}

	s.JWT = auth.NewJWTManager(&cfg.JWT)
	s.Index = authz.NewPermissionIndex(store.NewPermissionStore(deps.DB))
	s.Gate = authz.NewAuthorizationGate(
		s.JWT,
		authz.NewPathMatcher(s.Index),
		authz.NewRoleResolver(roles),
		authz.NewDataScopeResolver(depts, roles),
		authz.GateOptions{
			AllowList:        allowList,
			QueryTokenPaths:  queryTokenPaths,
			DenyUnconfigured: cfg.Authz.DenyUnconfigured,
		},
	)
	s.Service = grant.NewService(grant.Options{
		Grants:      store.NewGrantStore(deps.DB, casbin),
		Index:       s.Index,
		Depts:       s.depts,
		Casbin:      casbin,
		Broadcaster: deps.Broadcaster,
	})

	s.App = fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ErrorHandler:          middleware.ErrorHandler,
		ReadTimeout:           time.Duration(cfg.Server.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.HTTP.WriteTimeout) * time.Second,
		DisableStartupMessage: true,
	})
	s.App.Use(middleware.Recovery(), middleware.RequestID())

	// 健康检查和指标不经过授权
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return response.Success(c, fiber.Map{
			"status":      "healthy",
			"service":     cfg.App.Name,
			"indexLoaded": s.Index.IsLoaded(),
			"time":        time.Now().Format(time.RFC3339),
		})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.App.Use(middleware.Authorize(s.Gate, cfg.Authz.QueryTokenParam))
	paths := router.Register(s.App, grant.NewController(s.Service))

	logger.Info("授权服务已组装",
		zap.String("grantBackend", cfg.Authz.GrantBackend),
		zap.Int("allowList", allowList.Len()),
		zap.Bool("denyUnconfigured", cfg.Authz.DenyUnconfigured),
		zap.Strings("routes", paths),
	)
	return s, nil
}

// Close 释放后台资源
func (s *Server) Close() {
	if s.depts != nil {
		s.depts.Close()
	}
}
