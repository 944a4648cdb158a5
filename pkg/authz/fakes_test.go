package authz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errStoreDown = errors.New("connection refused")

type fakeSource struct {
	perms []Permission
	err   error
	calls atomic.Int32
	// hook 在返回前调用，用于模拟读取期间的并发操作
	hook func()
}

func (f *fakeSource) ListAPIPermissions(ctx context.Context) ([]Permission, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.perms, nil
}

type fakeRoleStore struct {
	roles     map[string]*Role
	perms     map[string]*Permission
	roleDepts map[string][]string
	err       error
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles:     make(map[string]*Role),
		perms:     make(map[string]*Permission),
		roleDepts: make(map[string][]string),
	}
}

func (f *fakeRoleStore) grant(roleID string, perms ...Permission) {
	role, ok := f.roles[roleID]
	if !ok {
		role = &Role{ID: roleID}
		f.roles[roleID] = role
	}
	for i := range perms {
		p := perms[i]
		f.perms[p.ID] = &p
		role.PermissionIDs = append(role.PermissionIDs, p.ID)
	}
}

func (f *fakeRoleStore) FindRole(ctx context.Context, roleID string) (*Role, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[roleID], nil
}

func (f *fakeRoleStore) FindPermission(ctx context.Context, permissionID string) (*Permission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[permissionID], nil
}

func (f *fakeRoleStore) FindRoleDeptIDs(ctx context.Context, roleID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roleDepts[roleID], nil
}

// fakeDeptStore parent -> children
type fakeDeptStore struct {
	children map[string][]string
	err      error
}

func (f *fakeDeptStore) GetDescendantIDs(ctx context.Context, deptID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []string
	queue := []string{deptID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range f.children[cur] {
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}

type fakeAuthenticator struct {
	mu         sync.Mutex
	principals map[string]*Principal
	calls      int
	err        error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.principals[credential]
	if !ok {
		return nil, errors.New("token is invalid")
	}
	return p, nil
}

type countingLookup struct {
	inner PermissionLookup
	calls int
}

func (c *countingLookup) Lookup(ctx context.Context, path, method string) (string, bool, error) {
	c.calls++
	if c.inner == nil {
		return "", false, nil
	}
	return c.inner.Lookup(ctx, path, method)
}

func activePerm(id, path, method string, scope DataScope) Permission {
	return Permission{ID: id, APIPath: path, HTTPMethod: method, DataScope: scope, IsActive: true}
}
