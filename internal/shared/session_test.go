package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, "dashboard_session", time.Hour), mr
}

func TestSessionStoreResolveFromCookie(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, Principal{UserID: 7, Email: "a@example.com", RoleName: "admin"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: store.CookieName(), Value: id})

	p, ok, err := store.Resolve(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, "admin", p.RoleName)
}

func TestSessionStoreResolveFromBearer(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, Principal{UserID: 3, Email: "b@example.com", RoleName: "user"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+id)

	p, ok, err := store.Resolve(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b@example.com", p.Email)
}

func TestSessionStoreUnknownOrExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok, err := store.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := store.Put(ctx, Principal{UserID: 1, RoleName: "admin"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	req.Header.Set("Authorization", "Bearer "+id)
	_, ok, err = store.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStoreRevoke(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, Principal{UserID: 1, RoleName: "admin"})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, id))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+id)
	_, ok, err := store.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrincipalFromContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithPrincipal(context.Background(), Principal{})
	_, ok = PrincipalFromContext(ctx)
	assert.False(t, ok, "anonymous principal must not count as authenticated")

	ctx = ContextWithPrincipal(context.Background(), Principal{RoleName: "user"})
	p, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user", p.RoleName)
}

func TestNewPaginationClamps(t *testing.T) {
	p := NewPagination(0, 500, 250)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 0, 45)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 40, p.Offset())
}
