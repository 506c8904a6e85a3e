package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/cache"
)

// PermissionCache is a read-through cache of grants keyed by role id and
// version. Role mutations bump the version in the same transaction, so stale
// entries are never addressed again and simply expire.
type PermissionCache struct {
	store  Store
	cache  *cache.JSON
	group  singleflight.Group
	logger *slog.Logger
}

// NewPermissionCache constructs the cache. A nil cache.JSON loads from the store on every call.
func NewPermissionCache(store Store, c *cache.JSON, logger *slog.Logger) *PermissionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionCache{store: store, cache: c, logger: logger}
}

// Get returns the grant for ref, loading it on a miss. Concurrent misses for
// the same key share one load. Redis failures fall back to the store.
func (c *PermissionCache) Get(ctx context.Context, ref RoleRef) (Grant, error) {
	key := c.cache.Key("rbac", "role", strconv.FormatInt(ref.ID, 10), "v"+strconv.FormatInt(ref.Version, 10))
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, key, ref.ID)
	})
	select {
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Grant{}, res.Err
		}
		return res.Val.(Grant), nil
	}
}

func (c *PermissionCache) fetch(ctx context.Context, key string, roleID int64) (Grant, error) {
	var loadErr error
	var grant Grant
	err := c.cache.FetchJSON(ctx, key, &grant, func(ctx context.Context) (any, error) {
		g, err := c.store.LoadGrant(ctx, roleID)
		loadErr = err
		return g, err
	})
	if err == nil {
		return grant, nil
	}
	if loadErr != nil {
		return Grant{}, loadErr
	}
	c.logger.Warn("rbac cache unavailable, reading store", slog.String("key", key), slog.Any("error", err))
	return c.store.LoadGrant(ctx, roleID)
}
