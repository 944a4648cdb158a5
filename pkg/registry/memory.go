package registry

import (
	"sync"

	"go-micro.dev/v5/registry"
)

// MemoryRegistry 进程内注册中心，单进程部署和测试使用
type MemoryRegistry struct {
	services map[string]map[string]*registry.Node // 服务名 -> 节点ID -> 节点
	versions map[string]string
	mu       sync.RWMutex
}

// NewMemoryRegistry 创建内存注册中心
func NewMemoryRegistry() registry.Registry {
	return &MemoryRegistry{
		services: make(map[string]map[string]*registry.Node),
		versions: make(map[string]string),
	}
}

// Init 初始化
func (r *MemoryRegistry) Init(opts ...registry.Option) error {
	return nil
}

// Options 获取选项
func (r *MemoryRegistry) Options() registry.Options {
	return registry.Options{}
}

// Register 注册服务，同名服务的节点合并
func (r *MemoryRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes, ok := r.services[s.Name]
	if !ok {
		nodes = make(map[string]*registry.Node)
		r.services[s.Name] = nodes
	}
	for _, n := range s.Nodes {
		nodes[n.Id] = n
	}
	r.versions[s.Name] = s.Version
	return nil
}

// Deregister 注销服务节点，节点全部注销后移除服务
func (r *MemoryRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := r.services[s.Name]
	for _, n := range s.Nodes {
		delete(nodes, n.Id)
	}
	if len(s.Nodes) == 0 || len(nodes) == 0 {
		delete(r.services, s.Name)
		delete(r.versions, s.Name)
	}
	return nil
}

// GetService 获取服务
func (r *MemoryRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes, ok := r.services[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	svc := &registry.Service{Name: name, Version: r.versions[name]}
	for _, n := range nodes {
		svc.Nodes = append(svc.Nodes, n)
	}
	return []*registry.Service{svc}, nil
}

// ListServices 列出所有服务，只包含名称和版本
func (r *MemoryRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*registry.Service, 0, len(r.services))
	for name := range r.services {
		services = append(services, &registry.Service{Name: name, Version: r.versions[name]})
	}
	return services, nil
}

// Watch 不支持监听，返回的 Watcher 阻塞到 Stop
func (r *MemoryRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	return newBlockingWatcher(), nil
}

// String 返回注册中心名称
func (r *MemoryRegistry) String() string {
	return "memory"
}

// blockingWatcher 阻塞到 Stop 的监听器
type blockingWatcher struct {
	exit chan struct{}
	once sync.Once
}

func newBlockingWatcher() *blockingWatcher {
	return &blockingWatcher{exit: make(chan struct{})}
}

func (w *blockingWatcher) Next() (*registry.Result, error) {
	<-w.exit
	return nil, registry.ErrWatcherStopped
}

func (w *blockingWatcher) Stop() {
	w.once.Do(func() { close(w.exit) })
}
