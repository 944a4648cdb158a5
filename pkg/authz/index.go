package authz

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/permgate/pkg/logger"
	"github.com/permgate/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoPermissionSource 未配置权限数据源时无法隐式重建
var ErrNoPermissionSource = errors.New("authz: permission source not configured")

// placeholderRe 路径参数占位符，如 {id}；空的 {} 同样视为占位符
var placeholderRe = regexp.MustCompile(`\{[^/{}]*\}`)

type indexKey struct {
	path   string
	method string
}

// pathPattern 含占位符的路径
type pathPattern struct {
	path string
	re   *regexp.Regexp
}

// IndexEntry 索引条目（用于查看）
type IndexEntry struct {
	Path         string `json:"path"`
	Method       string `json:"method"`
	PermissionID string `json:"permissionId"`
}

// IndexSnapshot 一次重建产生的不可变索引
type IndexSnapshot struct {
	entries map[indexKey]string
	// 按 "/" 数量分桶，占位符不跨段，只有段数相同的路径才可能匹配
	patterns     map[int][]pathPattern
	patternCount int
	builtAt      time.Time
}

// Len 条目数
func (s *IndexSnapshot) Len() int {
	return len(s.entries)
}

// PatternCount 含占位符的路径数
func (s *IndexSnapshot) PatternCount() int {
	return s.patternCount
}

// BuiltAt 构建时间
func (s *IndexSnapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Entries 返回按路径、方法排序的全部条目
func (s *IndexSnapshot) Entries() []IndexEntry {
	result := make([]IndexEntry, 0, len(s.entries))
	for k, id := range s.entries {
		result = append(result, IndexEntry{Path: k.path, Method: k.method, PermissionID: id})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// buildSnapshot 从权限列表构建索引
//
// 同一 (path, method) 出现多次时以迭代顺序中最后一条为准；
// 显式方法的条目总是优先于 ALL 展开的条目。
func buildSnapshot(perms []Permission) *IndexSnapshot {
	snap := &IndexSnapshot{
		entries:  make(map[indexKey]string, len(perms)*2),
		patterns: make(map[int][]pathPattern),
		builtAt:  time.Now(),
	}

	var allKeys []indexKey
	seenPaths := make(map[string]struct{})
	var pathOrder []string

	for _, p := range perms {
		path := strings.TrimSpace(p.APIPath)
		if path == "" || !p.IsActive || p.IsDeleted {
			continue
		}
		method := NormalizeMethod(p.HTTPMethod)
		if !isKnownMethod(method) {
			logger.Debug("跳过未知HTTP方法的权限",
				zap.String("permissionId", p.ID),
				zap.String("method", p.HTTPMethod),
			)
			continue
		}

		key := indexKey{path: path, method: method}
		if prev, ok := snap.entries[key]; ok {
			if prev != p.ID {
				logger.Warn("权限路径重复，后者覆盖前者",
					zap.String("path", path),
					zap.String("method", method),
					zap.String("previous", prev),
					zap.String("winner", p.ID),
				)
			}
		} else if method == MethodAll {
			allKeys = append(allKeys, key)
		}
		snap.entries[key] = p.ID

		if _, ok := seenPaths[path]; !ok {
			seenPaths[path] = struct{}{}
			pathOrder = append(pathOrder, path)
		}
	}

	// ALL 展开：仅填补没有显式条目的具体方法
	for _, key := range allKeys {
		id := snap.entries[key]
		for _, m := range ConcreteMethods {
			concrete := indexKey{path: key.path, method: m}
			if _, ok := snap.entries[concrete]; !ok {
				snap.entries[concrete] = id
			}
		}
	}

	for _, path := range pathOrder {
		re := compilePattern(path)
		if re == nil {
			continue
		}
		segments := strings.Count(path, "/")
		snap.patterns[segments] = append(snap.patterns[segments], pathPattern{path: path, re: re})
		snap.patternCount++
	}

	return snap
}

// compilePattern 将含占位符的路径编译为锚定的正则，不含占位符时返回 nil
func compilePattern(path string) *regexp.Regexp {
	locs := placeholderRe.FindAllStringIndex(path, -1)
	if len(locs) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range locs {
		b.WriteString(regexp.QuoteMeta(path[last:loc[0]]))
		b.WriteString("[^/]+")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(path[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		logger.Warn("权限路径模式编译失败", zap.String("path", path), zap.Error(err))
		return nil
	}
	return re
}

// PermissionIndex 权限索引
//
// 读取无锁：每次重建生成新的 IndexSnapshot 后整体替换，查询不会看到构建了一半的索引。
type PermissionIndex struct {
	source  PermissionSource
	current atomic.Pointer[IndexSnapshot]

	// publishMu 保证代次检查与发布是原子的
	publishMu  sync.Mutex
	generation uint64

	group singleflight.Group
}

// NewPermissionIndex 创建权限索引
func NewPermissionIndex(source PermissionSource) *PermissionIndex {
	return &PermissionIndex{source: source}
}

// Rebuild 用给定权限列表重建并发布索引
func (x *PermissionIndex) Rebuild(perms []Permission) *IndexSnapshot {
	start := time.Now()
	snap := buildSnapshot(perms)

	x.publishMu.Lock()
	x.current.Store(snap)
	x.publishMu.Unlock()

	metrics.RecordIndexRebuild(nil, snap.Len(), true, time.Since(start))
	return snap
}

// Refresh 从数据源读取权限并重建索引
//
// 同一代次内的并发调用合并为一次读取；失效后到达的调用使用新的代次，不会拿到失效前的结果。
// 共享的读取不受任一调用方取消的影响，调用方取消时只放弃自己的等待。
func (x *PermissionIndex) Refresh(ctx context.Context) (*IndexSnapshot, error) {
	if x.source == nil {
		return nil, ErrNoPermissionSource
	}

	x.publishMu.Lock()
	gen := x.generation
	x.publishMu.Unlock()

	readCtx := context.WithoutCancel(ctx)
	ch := x.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return x.rebuildFromSource(readCtx, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*IndexSnapshot), nil
	case <-ctx.Done():
		return nil, lookupError("wait for index rebuild", ctx.Err())
	}
}

// rebuildFromSource 读取数据源并构建索引，代次未变时发布
func (x *PermissionIndex) rebuildFromSource(ctx context.Context, gen uint64) (*IndexSnapshot, error) {
	start := time.Now()
	perms, err := x.source.ListAPIPermissions(ctx)
	if err != nil {
		metrics.RecordIndexRebuild(err, 0, false, time.Since(start))
		return nil, lookupError("list permissions", err)
	}
	snap := buildSnapshot(perms)

	x.publishMu.Lock()
	// 读取期间发生了失效，结果只给本代次的调用使用
	published := x.generation == gen
	if published {
		x.current.Store(snap)
	}
	x.publishMu.Unlock()

	metrics.RecordIndexRebuild(nil, snap.Len(), published, time.Since(start))
	logger.Info("权限索引已重建",
		zap.Int("permissions", len(perms)),
		zap.Int("entries", snap.Len()),
		zap.Int("patterns", snap.PatternCount()),
		zap.Bool("published", published),
		zap.Duration("took", time.Since(start)),
	)
	return snap, nil
}

// Snapshot 返回当前索引，未加载时隐式重建
func (x *PermissionIndex) Snapshot(ctx context.Context) (*IndexSnapshot, error) {
	if snap := x.current.Load(); snap != nil {
		return snap, nil
	}
	return x.Refresh(ctx)
}

// Invalidate 清空索引，下一次查询时重建
func (x *PermissionIndex) Invalidate() {
	x.publishMu.Lock()
	x.generation++
	x.current.Store(nil)
	x.publishMu.Unlock()

	metrics.RecordIndexInvalidated()
	logger.Debug("权限索引已失效")
}

// IsLoaded 自上次失效以来是否已重建
func (x *PermissionIndex) IsLoaded() bool {
	return x.current.Load() != nil
}

// Entries 当前已发布索引的条目，未加载时返回 nil
func (x *PermissionIndex) Entries() []IndexEntry {
	snap := x.current.Load()
	if snap == nil {
		return nil
	}
	return snap.Entries()
}
