package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/permgate/pkg/logger"
	"github.com/permgate/pkg/metrics"
	"go.uber.org/zap"
)

// Outcome 授权结果
type Outcome int

const (
	OutcomeUnauthenticated Outcome = iota // 未认证
	OutcomePermitted                      // 放行
	OutcomeDenied                         // 拒绝
)

func (o Outcome) String() string {
	switch o {
	case OutcomePermitted:
		return "permitted"
	case OutcomeDenied:
		return "denied"
	default:
		return "unauthenticated"
	}
}

// Reason 决策原因
type Reason string

const (
	ReasonAllowList              Reason = "allow_list"
	ReasonSuperuser              Reason = "superuser"
	ReasonUnconfigured           Reason = "no_permission_configured"
	ReasonGranted                Reason = "granted"
	ReasonNoRole                 Reason = "no_role"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonMissingCredential      Reason = "missing_credential"
	ReasonInvalidCredential      Reason = "invalid_credential"
)

// Request 授权请求
type Request struct {
	Path   string
	Method string
	// Authorization 请求头原值，如 "Bearer xxx"
	Authorization string
	// QueryToken 查询参数中的令牌，仅对 QueryTokenPaths 生效
	QueryToken string
}

// Decision 授权决策
type Decision struct {
	Outcome      Outcome
	Reason       Reason
	Principal    *Principal
	PermissionID string
	Filter       *DataScopeFilter
}

// Permitted 是否放行
func (d Decision) Permitted() bool {
	return d.Outcome == OutcomePermitted
}

// GateOptions 授权网关选项
type GateOptions struct {
	// AllowList 免认证免授权的路径
	AllowList *PathSet
	// QueryTokenPaths 允许从查询参数读取令牌的路径（下载、流式接口）
	QueryTokenPaths *PathSet
	// DenyUnconfigured 未配置权限的接口是否拒绝，默认放行
	DenyUnconfigured bool
}

// AuthorizationGate 请求级授权决策
type AuthorizationGate struct {
	authn  Authenticator
	lookup PermissionLookup
	roles  *RoleResolver
	scopes *DataScopeResolver
	opts   GateOptions
}

// NewAuthorizationGate 创建授权网关
func NewAuthorizationGate(authn Authenticator, lookup PermissionLookup, roles *RoleResolver, scopes *DataScopeResolver, opts GateOptions) *AuthorizationGate {
	return &AuthorizationGate{
		authn:  authn,
		lookup: lookup,
		roles:  roles,
		scopes: scopes,
		opts:   opts,
	}
}

// Authorize 对请求做出授权决策
//
// 决策以值返回；只有存储查询失败时返回错误。
func (g *AuthorizationGate) Authorize(ctx context.Context, req Request) (Decision, error) {
	d, err := g.authorize(ctx, req)
	if err != nil {
		metrics.RecordDecision("error", "lookup_failure")
		logger.Error("授权查询失败",
			zap.String("path", req.Path),
			zap.String("method", req.Method),
			zap.Error(err),
		)
		return Decision{}, err
	}

	metrics.RecordDecision(d.Outcome.String(), string(d.Reason))
	if d.Outcome != OutcomePermitted {
		fields := []zap.Field{
			zap.String("path", req.Path),
			zap.String("method", req.Method),
			zap.String("reason", string(d.Reason)),
		}
		if d.Principal != nil {
			fields = append(fields, zap.String("userId", d.Principal.UserID), zap.String("roleId", d.Principal.RoleID))
		}
		logger.Debug("请求未通过授权", fields...)
	}
	return d, nil
}

func (g *AuthorizationGate) authorize(ctx context.Context, req Request) (Decision, error) {
	if g.opts.AllowList.Contains(req.Path) {
		return Decision{Outcome: OutcomePermitted, Reason: ReasonAllowList, Filter: AllFilter()}, nil
	}

	credential := bearerToken(req.Authorization)
	if credential == "" && g.opts.QueryTokenPaths.Contains(req.Path) {
		credential = strings.TrimSpace(req.QueryToken)
	}
	if credential == "" {
		return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonMissingCredential}, nil
	}

	principal, err := g.authn.Authenticate(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrLookupFailure) {
			return Decision{}, err
		}
		return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonInvalidCredential}, nil
	}
	if principal == nil {
		return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonInvalidCredential}, nil
	}

	if principal.IsSuperuser {
		return Decision{Outcome: OutcomePermitted, Reason: ReasonSuperuser, Principal: principal, Filter: AllFilter()}, nil
	}

	permissionID, found, err := g.lookup.Lookup(ctx, req.Path, req.Method)
	if err != nil {
		return Decision{}, lookupError("match permission", err)
	}
	if !found {
		if g.opts.DenyUnconfigured {
			return Decision{Outcome: OutcomeDenied, Reason: ReasonUnconfigured, Principal: principal}, nil
		}
		return Decision{Outcome: OutcomePermitted, Reason: ReasonUnconfigured, Principal: principal, Filter: AllFilter()}, nil
	}

	denied := Decision{Outcome: OutcomeDenied, Principal: principal, PermissionID: permissionID}
	if !principal.HasRole() {
		denied.Reason = ReasonNoRole
		return denied, nil
	}

	ok, err := g.roles.HasPermission(ctx, principal.RoleID, permissionID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		denied.Reason = ReasonInsufficientPermission
		return denied, nil
	}

	scope, err := g.roles.GetDataScope(ctx, permissionID)
	if err != nil {
		return Decision{}, err
	}
	filter, err := g.scopes.Resolve(ctx, scope, principal)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Outcome:      OutcomePermitted,
		Reason:       ReasonGranted,
		Principal:    principal,
		PermissionID: permissionID,
		Filter:       filter,
	}, nil
}

// bearerToken 从 Authorization 头中取出令牌，"Bearer " 前缀可省略
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if strings.EqualFold(header, "bearer") {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	return strings.TrimSpace(header)
}
