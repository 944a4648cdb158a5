package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/broadcast"
	"github.com/permgate/pkg/config"
	"github.com/permgate/pkg/database"
	"github.com/permgate/pkg/logger"
	pkgRegistry "github.com/permgate/pkg/registry"
	"github.com/permgate/services/authz/internal/model"
	"github.com/permgate/services/authz/internal/server"
	"github.com/permgate/services/authz/internal/store"
	"github.com/spf13/cobra"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

const serviceName = "authz-service"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "permgate",
		Short:        "permgate 请求级授权网关",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认在 ./configs 下查找 config.yaml")

	cmd.AddCommand(serveCmd(&configPath), indexCmd(&configPath))
	return cmd
}

// setup 加载配置并初始化日志和数据库
func setup(configPath string) (*config.Config, error) {
	if err := config.Init(configPath); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if err := database.Init(&cfg.Database); err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	return cfg, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动授权服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer database.Close()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	db := database.Get()
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	logger.Info("数据库迁移完成")

	var (
		reg         registry.Registry = pkgRegistry.NewMemoryRegistry()
		broadcaster *broadcast.Broadcaster
	)
	if cfg.Redis.Enabled() {
		if err := database.InitRedis(&cfg.Redis); err != nil {
			return fmt.Errorf("初始化Redis失败: %w", err)
		}
		defer database.CloseRedis()

		client := database.GetRedis()
		reg = pkgRegistry.NewRedisRegistry(client)
		broadcaster = broadcast.New(client, cfg.Authz.InvalidateChannel)
	} else {
		logger.Warn("Redis 未启用，权限失效不会同步到其他节点")
	}

	svc := pkgRegistry.BuildService(&pkgRegistry.ServiceConfig{
		Name:    serviceName,
		Version: cfg.App.Version,
		NodeID:  serviceName + "-" + uuid.NewString(),
		Address: cfg.Server.HTTP.Addr(),
		Routes: []pkgRegistry.RouteConfig{
			pkgRegistry.NewPublicRoute("/health", "GET"),
			pkgRegistry.NewPublicRoute("/metrics", "GET"),
			pkgRegistry.NewProtectedRoute("/authz"),
		},
	})
	if err := reg.Register(svc); err != nil {
		return fmt.Errorf("服务注册失败: %w", err)
	}
	defer func() {
		if err := reg.Deregister(svc); err != nil {
			logger.Warn("服务注销失败", zap.Error(err))
		}
	}()

	srv, err := server.New(server.Deps{
		Config:      cfg,
		DB:          db,
		Broadcaster: broadcaster,
		Registry:    reg,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	if broadcaster != nil {
		if err := broadcaster.Start(ctx); err != nil {
			return err
		}
		defer broadcaster.Stop()
	}

	// 预热索引，失败时首个请求会重试
	if _, err := srv.Index.Refresh(ctx); err != nil {
		logger.Warn("预加载权限索引失败", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.App.Listen(cfg.Server.HTTP.Addr())
	}()
	logger.Info("授权服务已启动",
		zap.String("addr", cfg.Server.HTTP.Addr()),
		zap.String("env", cfg.App.Env),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP 服务启动失败: %w", err)
	case <-quit:
	}

	logger.Info("正在关闭服务...")
	if err := srv.App.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("关闭HTTP服务失败", zap.Error(err))
	}
	logger.Info("授权服务已停止")
	return nil
}

func indexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "打印当前权限索引",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(*configPath); err != nil {
				return err
			}
			defer logger.Sync()
			defer database.Close()

			index := authz.NewPermissionIndex(store.NewPermissionStore(database.Get()))
			snap, err := index.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tMETHOD\tPERMISSION")
			for _, e := range snap.Entries() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Path, e.Method, e.PermissionID)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries, %d patterns\n", snap.Len(), snap.PatternCount())
			return nil
		},
	}
}
