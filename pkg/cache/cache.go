package cache

import (
	"sync"
	"time"
)

// item 缓存项
type item[V any] struct {
	value      V
	expiration int64 // Unix纳秒时间戳，0表示永不过期
}

func (it *item[V]) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

// Cache 带过期时间的内存缓存
type Cache[K comparable, V any] struct {
	items map[K]*item[V]
	mu    sync.RWMutex
	ttl   time.Duration

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New 创建缓存，ttl 为 0 时永不过期
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return NewWithCleanup[K, V](ttl, 0)
}

// NewWithCleanup 创建带定期清理的缓存
func NewWithCleanup[K comparable, V any](ttl, cleanupInterval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		items:       make(map[K]*item[V]),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

// cleanupLoop 定期清理过期项
func (c *Cache[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// Set 使用默认过期时间写入
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithExpiration(key, value, c.ttl)
}

// SetWithExpiration 写入并指定过期时间
func (c *Cache[K, V]) SetWithExpiration(key K, value V, expiration time.Duration) {
	var exp int64
	if expiration > 0 {
		exp = time.Now().Add(expiration).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = &item[V]{value: value, expiration: exp}
	c.mu.Unlock()
}

// Get 读取缓存，不存在或已过期时返回 false
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || it.expired(time.Now().UnixNano()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Delete 删除缓存
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Flush 清空缓存
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	c.items = make(map[K]*item[V])
	c.mu.Unlock()
}

// DeleteExpired 删除过期项
func (c *Cache[K, V]) DeleteExpired() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

// Len 缓存项数量，包含尚未清理的过期项
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close 停止清理协程
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}
