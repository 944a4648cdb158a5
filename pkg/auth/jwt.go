package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/config"
)

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotValidYet = errors.New("token not valid yet")
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrTokenInvalid     = errors.New("token is invalid")
)

// Claims JWT声明
type Claims struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	RoleID      string `json:"roleId,omitempty"`
	DeptID      string `json:"deptId,omitempty"`
	IsSuperuser bool   `json:"isSuperuser,omitempty"`
	jwt.RegisteredClaims
}

// Principal 转换为调用方
func (c *Claims) Principal() *authz.Principal {
	return &authz.Principal{
		UserID:      c.UserID,
		Username:    c.Username,
		RoleID:      c.RoleID,
		DeptID:      c.DeptID,
		IsSuperuser: c.IsSuperuser,
	}
}

// JWTManager JWT管理器，同时作为网关的认证器
type JWTManager struct {
	secret   []byte
	issuer   string
	expireIn time.Duration
}

var _ authz.Authenticator = (*JWTManager)(nil)

// NewJWTManager 创建JWT管理器
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	return &JWTManager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		expireIn: time.Duration(cfg.Expire) * time.Second,
	}
}

// GenerateToken 为调用方签发Token
func (m *JWTManager) GenerateToken(p *authz.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      p.UserID,
		Username:    p.Username,
		RoleID:      p.RoleID,
		DeptID:      p.DeptID,
		IsSuperuser: p.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expireIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析Token
func (m *JWTManager) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotValidYet
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenInvalid
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, ErrTokenInvalid
}

// Authenticate 校验凭证并返回调用方
func (m *JWTManager) Authenticate(ctx context.Context, credential string) (*authz.Principal, error) {
	claims, err := m.ParseToken(credential)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

// GetExpireIn 获取过期时间
func (m *JWTManager) GetExpireIn() time.Duration {
	return m.expireIn
}
