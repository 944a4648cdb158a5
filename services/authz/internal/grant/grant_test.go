package grant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/broadcast"
	"github.com/permgate/pkg/database"
	"github.com/permgate/pkg/router"
	"github.com/permgate/services/authz/internal/model"
	"github.com/permgate/services/authz/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type staticSource struct {
	perms []authz.Permission
	calls int
}

func (s *staticSource) ListAPIPermissions(ctx context.Context) ([]authz.Permission, error) {
	s.calls++
	return s.perms, nil
}

type deptStub struct{ calls int }

func (d *deptStub) GetDescendantIDs(ctx context.Context, deptID string) ([]string, error) {
	d.calls++
	return []string{}, nil
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

func newTestService(t *testing.T) (*Service, *staticSource, *deptStub) {
	t.Helper()
	db := setupDB(t)

	role := &model.Role{Name: "r1", Code: "r1", Status: model.StatusEnabled}
	role.ID = "r1"
	require.NoError(t, db.Create(role).Error)

	src := &staticSource{perms: []authz.Permission{
		{ID: "p1", APIPath: "/users", HTTPMethod: "GET", IsActive: true},
	}}
	depts := &deptStub{}
	cached := store.NewCachedDeptStore(depts, 0)
	t.Cleanup(cached.Close)

	svc := NewService(Options{
		Grants: store.NewGrantStore(db, nil),
		Index:  authz.NewPermissionIndex(src),
		Depts:  cached,
	})
	return svc, src, depts
}

func TestService_MutationsInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)

	_, err := svc.Index().Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, svc.Index().IsLoaded())

	require.NoError(t, svc.SetRolePermissions(ctx, "r1", []string{"p1"}))
	assert.False(t, svc.Index().IsLoaded())

	snap, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, src.calls)

	require.NoError(t, svc.SetRoleDepts(ctx, "r1", []string{"d1"}))
	assert.False(t, svc.Index().IsLoaded())

	// 失败的修改不触发失效
	_, err = svc.Index().Snapshot(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.SetRolePermissions(ctx, "missing", nil), store.ErrRoleNotFound)
	assert.True(t, svc.Index().IsLoaded())
}

func TestService_HandleRemote(t *testing.T) {
	ctx := context.Background()
	svc, _, depts := newTestService(t)

	_, err := svc.depts.GetDescendantIDs(ctx, "d1")
	require.NoError(t, err)
	_, err = svc.Index().Snapshot(ctx)
	require.NoError(t, err)

	svc.HandleRemote(ctx, &broadcast.Message{Topic: broadcast.TopicAuthzInvalidate, NodeID: "other"})
	assert.False(t, svc.Index().IsLoaded())

	_, err = svc.depts.GetDescendantIDs(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, depts.calls)
}

func TestController_MeRequiresDecision(t *testing.T) {
	svc, _, _ := newTestService(t)
	app := fiber.New()
	router.Register(app, NewController(svc))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/authz/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/authz/index", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
