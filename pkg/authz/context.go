package authz

import "context"

type decisionKey struct{}

// NewContext 将放行的决策写入上下文，供下游查询读取调用方和数据范围
func NewContext(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// FromContext 读取上下文中的决策
func FromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// FilterFromContext 读取数据范围过滤描述，缺失时返回 nil
func FilterFromContext(ctx context.Context) *DataScopeFilter {
	d, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return d.Filter
}

// PrincipalFromContext 读取调用方，缺失时返回 nil
func PrincipalFromContext(ctx context.Context) *Principal {
	d, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return d.Principal
}
