package authz

import (
	"fmt"
	"regexp"
)

// PathSet 路径集合，支持精确路径和正则
type PathSet struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewPathSet 创建路径集合，正则非法时返回错误
func NewPathSet(paths []string, patterns []string) (*PathSet, error) {
	s := &PathSet{exact: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if p != "" {
			s.exact[p] = struct{}{}
		}
	}
	for _, expr := range patterns {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", expr, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Contains 路径是否在集合中
func (s *PathSet) Contains(path string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.exact[path]; ok {
		return true
	}
	for _, re := range s.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Len 精确路径与正则总数
func (s *PathSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact) + len(s.patterns)
}
