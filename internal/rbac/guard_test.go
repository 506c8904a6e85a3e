package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/cache"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockRole struct {
	name    string
	version int64
	perms   []string
}

type mockUser struct {
	roleID int64
	active bool
}

type mockStore struct {
	mu        sync.Mutex
	roles     map[int64]*mockRole
	users     map[int64]*mockUser
	loadCalls int
	loadErr   error
}

func newMockStore() *mockStore {
	return &mockStore{roles: map[int64]*mockRole{}, users: map[int64]*mockUser{}}
}

func (m *mockStore) addRole(id int64, name string, perms ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[id] = &mockRole{name: name, version: 1, perms: perms}
}

func (m *mockStore) replacePermissions(id int64, perms ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.roles[id]
	r.perms = perms
	r.version++
}

func (m *mockStore) RoleForUser(ctx context.Context, userID int64) (RoleRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return RoleRef{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	r := m.roles[u.roleID]
	return RoleRef{ID: u.roleID, Name: r.name, Version: r.version, Active: u.active}, nil
}

func (m *mockStore) RoleByName(ctx context.Context, name string) (RoleRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.roles {
		if r.name == name {
			return RoleRef{ID: id, Name: r.name, Version: r.version, Active: true}, nil
		}
	}
	return RoleRef{}, fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
}

func (m *mockStore) LoadGrant(ctx context.Context, roleID int64) (Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.loadErr != nil {
		return Grant{}, m.loadErr
	}
	r, ok := m.roles[roleID]
	if !ok {
		return Grant{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
	}
	perms := append([]string(nil), r.perms...)
	sort.Strings(perms)
	return Grant{RoleID: roleID, Version: r.version, Permissions: perms}, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	reasons []string
}

func (o *recordingObserver) ObserveDecision(capability string, allowed bool, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
}

func newCachedGuard(t *testing.T, store Store) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	perms := NewPermissionCache(store, cache.NewJSON(client, "test", time.Minute), nil)
	return NewGuard(store, perms, nil, nil), mr
}

// ============================================================================
// TESTS
// ============================================================================

func TestGuardManagerScenario(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers, catalog.ManageProducts)
	guard, _ := newCachedGuard(t, store)
	ctx := context.Background()
	manager := shared.Principal{RoleName: "manager"}

	assert.False(t, guard.Authorize(ctx, manager, "manage_roles"))
	assert.True(t, guard.Authorize(ctx, manager, "view_users"))
	assert.True(t, guard.Authorize(ctx, manager, "canViewUsers"))
	assert.True(t, guard.Authorize(ctx, manager, "canManageProducts"))
}

func TestGuardSeesReplacedPermissionSet(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers, catalog.ManageProducts)
	guard, _ := newCachedGuard(t, store)
	ctx := context.Background()
	manager := shared.Principal{RoleName: "manager"}

	require.True(t, guard.Authorize(ctx, manager, catalog.ViewUsers))

	store.replacePermissions(2)

	assert.False(t, guard.Authorize(ctx, manager, catalog.ViewUsers))
	flags := guard.CapabilitiesFor(ctx, "manager")
	for name, v := range flags {
		assert.False(t, v, name)
	}
}

func TestGuardFailsClosed(t *testing.T) {
	store := newMockStore()
	store.addRole(1, "admin", catalog.Names()...)
	guard, _ := newCachedGuard(t, store)
	ctx := context.Background()

	assert.False(t, guard.Authorize(ctx, shared.Principal{}, catalog.ViewUsers), "anonymous")
	assert.False(t, guard.Authorize(ctx, shared.Principal{RoleName: "ghost"}, catalog.ViewUsers), "unknown role")
	assert.False(t, guard.Authorize(ctx, shared.Principal{UserID: 99, RoleName: "admin"}, catalog.ViewUsers), "unknown user")
	assert.False(t, guard.Authorize(ctx, shared.Principal{RoleName: "admin"}, "launch_missiles"), "unknown capability")
	assert.False(t, guard.Authorize(ctx, shared.Principal{RoleName: "admin"}, ""), "empty capability")

	store.loadErr = fmt.Errorf("connection refused")
	assert.False(t, guard.Authorize(ctx, shared.Principal{RoleName: "admin"}, catalog.ViewUsers), "store error")
}

func TestCapabilitiesForUnknownRoleAllFalse(t *testing.T) {
	guard := NewGuard(newMockStore(), nil, nil, nil)
	flags := guard.CapabilitiesFor(context.Background(), "nobody")
	require.Len(t, flags, len(catalog.Names()))
	for name, v := range flags {
		assert.False(t, v, name)
	}
}

func TestCapabilitiesForKnownRole(t *testing.T) {
	store := newMockStore()
	store.addRole(3, "user", catalog.ViewNews, catalog.ViewCalendar)
	guard := NewGuard(store, nil, nil, nil)

	flags := guard.CapabilitiesFor(context.Background(), "user")
	assert.True(t, flags["canViewNews"])
	assert.True(t, flags["canViewCalendar"])
	assert.False(t, flags["canManageUsers"])
}

func TestGuardReResolvesUserRole(t *testing.T) {
	store := newMockStore()
	store.addRole(1, "admin", catalog.Names()...)
	store.addRole(3, "user", catalog.ViewNews)
	store.users[5] = &mockUser{roleID: 3, active: true}
	guard, _ := newCachedGuard(t, store)
	ctx := context.Background()

	// The session still claims admin, the store says user.
	p := shared.Principal{UserID: 5, RoleName: "admin"}
	assert.False(t, guard.Authorize(ctx, p, catalog.ManageRoles))
	assert.True(t, guard.Authorize(ctx, p, catalog.ViewNews))

	store.mu.Lock()
	store.users[5].roleID = 1
	store.mu.Unlock()
	assert.True(t, guard.Authorize(ctx, p, catalog.ManageRoles))

	store.mu.Lock()
	store.users[5].active = false
	store.mu.Unlock()
	assert.False(t, guard.Authorize(ctx, p, catalog.ViewNews))
}

func TestPermissionCacheLoadsOncePerVersion(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers)
	guard, mr := newCachedGuard(t, store)
	ctx := context.Background()
	p := shared.Principal{RoleName: "manager"}

	for i := 0; i < 5; i++ {
		require.True(t, guard.Authorize(ctx, p, catalog.ViewUsers))
	}
	assert.Equal(t, 1, store.loadCalls)
	assert.True(t, mr.Exists("test:rbac:role:2:v1"))

	store.replacePermissions(2, catalog.ViewUsers, catalog.ManageUsers)
	require.True(t, guard.Authorize(ctx, p, catalog.ManageUsers))
	assert.Equal(t, 2, store.loadCalls)
	assert.True(t, mr.Exists("test:rbac:role:2:v2"))
}

func TestPermissionCacheFallsBackWhenRedisDown(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers)
	guard, mr := newCachedGuard(t, store)
	mr.Close()

	assert.True(t, guard.Authorize(context.Background(), shared.Principal{RoleName: "manager"}, catalog.ViewUsers))
}

func TestGuardConcurrentChecks(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers)
	guard, _ := newCachedGuard(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = guard.Authorize(ctx, shared.Principal{RoleName: "manager"}, "canViewUsers")
		}(i)
	}
	wg.Wait()
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestGuardReportsDecisions(t *testing.T) {
	store := newMockStore()
	store.addRole(2, "manager", catalog.ViewUsers)
	obs := &recordingObserver{}
	guard := NewGuard(store, nil, nil, obs)
	ctx := context.Background()

	guard.Authorize(ctx, shared.Principal{RoleName: "manager"}, catalog.ViewUsers)
	guard.Authorize(ctx, shared.Principal{RoleName: "manager"}, catalog.ManageUsers)
	guard.Authorize(ctx, shared.Principal{RoleName: "ghost"}, catalog.ViewUsers)
	guard.Authorize(ctx, shared.Principal{}, catalog.ViewUsers)
	guard.Authorize(ctx, shared.Principal{RoleName: "manager"}, "bogus")

	assert.Equal(t, []string{"granted", "missing_permission", "unknown_principal", "anonymous", "unknown_capability"}, obs.reasons)
}
