package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWT(expire int64) *JWTManager {
	return NewJWTManager(&config.JWTConfig{Secret: "test-secret", Issuer: "permgate", Expire: expire})
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := newTestJWT(3600)
	p := &authz.Principal{UserID: "u1", Username: "alice", RoleID: "r1", DeptID: "d1"}

	token, err := m.GenerateToken(p)
	require.NoError(t, err)

	got, err := m.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestJWTManager_Errors(t *testing.T) {
	m := newTestJWT(3600)

	t.Run("expired", func(t *testing.T) {
		token, err := newTestJWT(-60).GenerateToken(&authz.Principal{UserID: "u1"})
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := m.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager(&config.JWTConfig{Secret: "other", Issuer: "permgate", Expire: 3600})
		token, err := other.GenerateToken(&authz.Principal{UserID: "u1"})
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		claims := Claims{
			UserID: "u1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "permgate",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing user", func(t *testing.T) {
		token, err := m.GenerateToken(&authz.Principal{Username: "ghost"})
		require.NoError(t, err)
		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestCasbinService_RolePermissions(t *testing.T) {
	s, err := NewMemoryCasbinService()
	require.NoError(t, err)

	require.NoError(t, s.SetRolePermissions("r1", []string{"p1", "p2", "p1", ""}))

	ids, err := s.RolePermissionIDs("r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)

	ok, err := s.HasPermission("r1", "p2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasPermission("r2", "p2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetRolePermissions("r1", []string{"p3"}))
	ids, err = s.RolePermissionIDs("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids)

	require.NoError(t, s.DeleteRole("r1"))
	ids, err = s.RolePermissionIDs("r1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
