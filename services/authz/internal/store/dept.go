package store

import (
	"context"
	"time"

	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/cache"
	"github.com/permgate/pkg/dal"
	"github.com/permgate/services/authz/internal/model"
	"gorm.io/gorm"
)

// DeptStore 部门树读取
type DeptStore struct {
	repo *dal.BaseRepository[model.Dept]
}

var _ authz.DeptStore = (*DeptStore)(nil)

// NewDeptStore 创建部门存储
func NewDeptStore(db *gorm.DB) *DeptStore {
	return &DeptStore{repo: dal.NewBaseRepository[model.Dept](db)}
}

// GetDescendantIDs 获取启用状态的全部下级部门ID，不含自身，按层级顺序
func (s *DeptStore) GetDescendantIDs(ctx context.Context, deptID string) ([]string, error) {
	rows, err := s.repo.FindAll(ctx,
		map[string]interface{}{"status": model.StatusEnabled},
		dal.WithSelect("id", "parent_id"),
		dal.WithOrder("sort, id"),
	)
	if err != nil {
		return nil, err
	}

	children := make(map[string][]string, len(rows))
	for _, d := range rows {
		children[d.ParentID] = append(children[d.ParentID], d.ID)
	}

	result := make([]string, 0)
	visited := map[string]struct{}{deptID: {}}
	queue := []string{deptID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range children[cur] {
			// 数据异常形成环时跳过已访问节点
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			result = append(result, id)
			queue = append(queue, id)
		}
	}
	return result, nil
}

// CachedDeptStore 带过期时间的部门子树缓存
type CachedDeptStore struct {
	inner authz.DeptStore
	cache *cache.Cache[string, []string]
}

var _ authz.DeptStore = (*CachedDeptStore)(nil)

// NewCachedDeptStore 创建部门子树缓存
func NewCachedDeptStore(inner authz.DeptStore, ttl time.Duration) *CachedDeptStore {
	return &CachedDeptStore{
		inner: inner,
		cache: cache.NewWithCleanup[string, []string](ttl, ttl*5),
	}
}

// GetDescendantIDs 先查缓存，查询失败不缓存
func (s *CachedDeptStore) GetDescendantIDs(ctx context.Context, deptID string) ([]string, error) {
	if ids, ok := s.cache.Get(deptID); ok {
		return ids, nil
	}
	ids, err := s.inner.GetDescendantIDs(ctx, deptID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(deptID, ids)
	return ids, nil
}

// Flush 清空缓存
func (s *CachedDeptStore) Flush() {
	s.cache.Flush()
}

// Close 停止缓存清理
func (s *CachedDeptStore) Close() {
	s.cache.Close()
}
