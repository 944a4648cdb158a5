package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/broadcast"
	"github.com/permgate/pkg/config"
	"github.com/permgate/pkg/database"
	pkgRegistry "github.com/permgate/pkg/registry"
	"github.com/permgate/services/authz/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "permgate-test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "permgate", Expire: 3600},
		Authz: config.AuthzConfig{
			QueryTokenParam: "token",
			GrantBackend:    GrantBackendDB,
			DeptCacheTTL:    60,
		},
	}
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenDialector(sqlite.Open(":memory:"), "silent")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	perm := &model.Permission{
		Name: "me", Code: "authz:me", Type: model.PermissionTypeAPI,
		APIPath: "/authz/me", HTTPMethod: "GET",
		DataScope: int8(authz.DataScopeDeptAndChildren), Status: model.StatusEnabled,
	}
	perm.ID = "p-me"
	require.NoError(t, db.Create(perm).Error)

	for _, id := range []string{"r1", "r2"} {
		role := &model.Role{Name: id, Code: id, Status: model.StatusEnabled}
		role.ID = id
		require.NoError(t, db.Create(role).Error)
	}
	require.NoError(t, db.Create(&model.RolePermission{RoleID: "r1", PermissionID: "p-me"}).Error)

	for _, d := range [][2]string{{"d1", ""}, {"d2", "d1"}, {"d3", "d2"}} {
		dept := &model.Dept{ParentID: d[1], Name: d[0], Status: model.StatusEnabled}
		dept.ID = d[0]
		require.NoError(t, db.Create(dept).Error)
	}
}

func newServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	deps.Config = cfg
	s, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func token(t *testing.T, s *Server, p *authz.Principal) string {
	t.Helper()
	tok, err := s.JWT.GenerateToken(p)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, s *Server, method, path, tok, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.App.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

var (
	alice = &authz.Principal{UserID: "u1", Username: "alice", RoleID: "r1", DeptID: "d1"}
	bob   = &authz.Principal{UserID: "u2", Username: "bob", RoleID: "r2", DeptID: "d2"}
	root  = &authz.Principal{UserID: "u0", Username: "root", IsSuperuser: true}
)

func TestServer_Me(t *testing.T) {
	db := setupDB(t)
	seed(t, db)
	s := newServer(t, testConfig(), Deps{DB: db})

	status, body := do(t, s, http.MethodGet, "/authz/me", token(t, s, alice), "")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "p-me", data["permissionId"])
	principal := data["principal"].(map[string]interface{})
	assert.Equal(t, "u1", principal["userId"])
	filter := data["filter"].(map[string]interface{})
	assert.Equal(t, "dept_and_children", filter["filterType"])
	assert.Equal(t, []interface{}{"d1", "d2", "d3"}, filter["deptIds"])

	status, _ = do(t, s, http.MethodGet, "/authz/me", token(t, s, bob), "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, s, http.MethodGet, "/authz/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, s, http.MethodGet, "/authz/me", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_RefreshAndGrant(t *testing.T) {
	db := setupDB(t)
	seed(t, db)
	s := newServer(t, testConfig(), Deps{DB: db})

	bobToken := token(t, s, bob)
	rootToken := token(t, s, root)

	// 未配置权限的接口默认放行
	status, body := do(t, s, http.MethodGet, "/authz/index", bobToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]interface{})["entries"])

	guard := &model.Permission{
		Name: "index", Code: "authz:index", Type: model.PermissionTypeAPI,
		APIPath: "/authz/index", HTTPMethod: "GET", Status: model.StatusEnabled,
	}
	guard.ID = "p-index"
	require.NoError(t, db.Create(guard).Error)

	// 索引未失效前仍使用旧结果
	status, _ = do(t, s, http.MethodGet, "/authz/index", bobToken, "")
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, s, http.MethodPost, "/authz/cache/refresh", rootToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["data"].(map[string]interface{})["entries"])

	status, body = do(t, s, http.MethodGet, "/authz/index", bobToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.EqualValues(t, http.StatusForbidden, body["code"])

	status, _ = do(t, s, http.MethodPut, "/authz/roles/r2/permissions", rootToken, `{"permissionIds":["p-index"]}`)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, s.Index.IsLoaded())

	status, body = do(t, s, http.MethodGet, "/authz/index", bobToken, "")
	require.Equal(t, http.StatusOK, status)
	items := body["data"].(map[string]interface{})["items"].([]interface{})
	assert.Len(t, items, 2)

	status, _ = do(t, s, http.MethodPut, "/authz/roles/missing/permissions", rootToken, `{"permissionIds":["p-index"]}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, s, http.MethodPut, "/authz/roles/r2/depts", rootToken, `{"deptIds":["d3"]}`)
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, s, http.MethodPut, "/authz/roles/r2/depts", rootToken, `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_DenyUnconfigured(t *testing.T) {
	db := setupDB(t)
	seed(t, db)

	cfg := testConfig()
	cfg.Authz.DenyUnconfigured = true
	cfg.Authz.AllowList = []string{"/authz/index"}
	s := newServer(t, cfg, Deps{DB: db})

	status, _ := do(t, s, http.MethodPost, "/authz/cache/refresh", token(t, s, alice), "")
	assert.Equal(t, http.StatusForbidden, status)

	// 白名单路径无需令牌
	status, _ = do(t, s, http.MethodGet, "/authz/index", "", "")
	assert.Equal(t, http.StatusOK, status)

	// 超级管理员不受限制
	status, _ = do(t, s, http.MethodPost, "/authz/cache/refresh", token(t, s, root), "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_CasbinBackend(t *testing.T) {
	db := setupDB(t)
	seed(t, db)

	cfg := testConfig()
	cfg.Authz.GrantBackend = GrantBackendCasbin
	s := newServer(t, cfg, Deps{DB: db})

	// 数据库关联不再生效，授权以策略为准
	status, _ := do(t, s, http.MethodGet, "/authz/me", token(t, s, alice), "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, s, http.MethodPut, "/authz/roles/r1/permissions", token(t, s, root), `{"permissionIds":["p-me"]}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, s, http.MethodGet, "/authz/me", token(t, s, alice), "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_UnknownGrantBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Authz.GrantBackend = "ldap"
	_, err := New(Deps{Config: cfg, DB: setupDB(t)})
	assert.Error(t, err)
}

func TestServer_RegistryPublicRoutes(t *testing.T) {
	db := setupDB(t)
	seed(t, db)

	reg := pkgRegistry.NewMemoryRegistry()
	require.NoError(t, reg.Register(pkgRegistry.BuildService(&pkgRegistry.ServiceConfig{
		Name:    "portal",
		Version: "v1",
		NodeID:  "portal-1",
		Address: "127.0.0.1:9000",
		Routes: []pkgRegistry.RouteConfig{
			pkgRegistry.NewPublicRoute("/public/"),
			pkgRegistry.NewProtectedRoute("/private"),
		},
	})))

	s := newServer(t, testConfig(), Deps{DB: db, Registry: reg})

	// 放行后没有对应路由
	status, _ := do(t, s, http.MethodGet, "/public/ping", "", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, s, http.MethodGet, "/private/ping", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, s, http.MethodGet, "/publicity", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_InvalidationFanOut(t *testing.T) {
	db := setupDB(t)
	seed(t, db)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	newNode := func() *Server {
		b := broadcast.New(client, "test:authz:invalidate")
		s := newServer(t, testConfig(), Deps{DB: db, Broadcaster: b})
		require.NoError(t, b.Start(ctx))
		t.Cleanup(func() { _ = b.Stop() })
		return s
	}
	a, b := newNode(), newNode()

	_, err := a.Index.Refresh(ctx)
	require.NoError(t, err)
	_, err = b.Index.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Service.SetRolePermissions(ctx, "r2", []string{"p-me"}))
	assert.False(t, a.Index.IsLoaded())

	require.Eventually(t, func() bool {
		return !b.Index.IsLoaded()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Metrics(t *testing.T) {
	s := newServer(t, testConfig(), Deps{DB: setupDB(t)})

	_, _ = do(t, s, http.MethodGet, "/authz/me", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "permgate_authz_decisions_total")
}
