package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/permgate/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

const (
	servicePrefix = "registry:service:"
	ttlDuration   = 30 * time.Second
	opTimeout     = 3 * time.Second
)

// RedisRegistry 基于 Redis 的服务注册中心，键过期即视为服务下线
type RedisRegistry struct {
	client    *redis.Client
	mu        sync.Mutex
	heartbeat map[string]chan struct{}
}

// NewRedisRegistry 创建基于 Redis 的注册中心
func NewRedisRegistry(client *redis.Client) registry.Registry {
	return &RedisRegistry{
		client:    client,
		heartbeat: make(map[string]chan struct{}),
	}
}

// Init 初始化
func (r *RedisRegistry) Init(opts ...registry.Option) error {
	return nil
}

// Options 获取选项
func (r *RedisRegistry) Options() registry.Options {
	return registry.Options{}
}

// Register 注册服务并启动心跳保活
func (r *RedisRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil || len(s.Nodes) == 0 {
		return fmt.Errorf("service or nodes cannot be empty")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}

	key := servicePrefix + s.Name
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, key, data, ttlDuration).Err(); err != nil {
		return fmt.Errorf("register service: %w", err)
	}

	logger.Debug("服务已注册",
		zap.String("key", key),
		zap.String("service", s.Name),
		zap.Int("nodes", len(s.Nodes)),
	)

	r.startHeartbeat(key, data)
	return nil
}

// Deregister 注销服务
func (r *RedisRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return fmt.Errorf("service cannot be nil")
	}

	key := servicePrefix + s.Name
	r.stopHeartbeat(key)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

// GetService 获取服务
func (r *RedisRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, servicePrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	var svc registry.Service
	if err := json.Unmarshal(data, &svc); err != nil {
		return nil, fmt.Errorf("unmarshal service: %w", err)
	}
	return []*registry.Service{&svc}, nil
}

// ListServices 列出所有服务
func (r *RedisRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	services := make([]*registry.Service, 0)
	iter := r.client.Scan(ctx, 0, servicePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		services = append(services, &registry.Service{Name: strings.TrimPrefix(iter.Val(), servicePrefix)})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan services: %w", err)
	}
	return services, nil
}

// Watch 不支持监听，返回的 Watcher 阻塞到 Stop
func (r *RedisRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	return newBlockingWatcher(), nil
}

// String 返回注册中心名称
func (r *RedisRegistry) String() string {
	return "redis"
}

// startHeartbeat 按 TTL 的三分之一续期
func (r *RedisRegistry) startHeartbeat(key string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stop, ok := r.heartbeat[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	r.heartbeat[key] = stop

	go func() {
		ticker := time.NewTicker(ttlDuration / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
				if err := r.client.Set(ctx, key, data, ttlDuration).Err(); err != nil {
					logger.Warn("服务心跳续期失败", zap.String("key", key), zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

// stopHeartbeat 停止心跳
func (r *RedisRegistry) stopHeartbeat(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stop, ok := r.heartbeat[key]; ok {
		close(stop)
		delete(r.heartbeat, key)
	}
}
