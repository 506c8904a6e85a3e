package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var errInactive = errors.New("rbac: user inactive")

// Guard is the single authorization decision point. Decisions are computed
// from the persisted role graph; any failure to resolve evidence is a denial.
type Guard struct {
	store    Store
	perms    *PermissionCache
	logger   *slog.Logger
	observer DecisionObserver
}

// NewGuard constructs a Guard. perms and observer may be nil.
func NewGuard(store Store, perms *PermissionCache, logger *slog.Logger, observer DecisionObserver) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if perms == nil {
		perms = NewPermissionCache(store, nil, logger)
	}
	return &Guard{store: store, perms: perms, logger: logger, observer: observer}
}

// Authorize reports whether p may exercise capability. capability may use
// either the permission name (view_users) or the flag name (canViewUsers).
// When the principal carries a user id the user's current role is re-read so
// that role changes apply to live sessions.
func (g *Guard) Authorize(ctx context.Context, p shared.Principal, capability string) bool {
	name := catalog.Normalize(capability)
	if name == "" {
		g.observe(capability, false, "unknown_capability")
		return false
	}
	grant, err := g.grantFor(ctx, p)
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, shared.ErrUnauthorized):
			reason = "anonymous"
		case errors.Is(err, shared.ErrNotFound):
			reason = "unknown_principal"
		case errors.Is(err, errInactive):
			reason = "inactive"
		default:
			g.logger.Error("rbac authorize", slog.Int64("user_id", p.UserID), slog.String("role", p.RoleName), slog.Any("error", err))
		}
		g.observe(name, false, reason)
		return false
	}
	if !grant.Has(name) {
		g.observe(name, false, "missing_permission")
		return false
	}
	g.observe(name, true, "granted")
	return true
}

// CapabilitiesFor returns the capability flags of roleName. Unknown roles and
// lookup failures yield every flag false.
func (g *Guard) CapabilitiesFor(ctx context.Context, roleName string) map[string]bool {
	return g.PrincipalCapabilities(ctx, shared.Principal{RoleName: roleName})
}

// PrincipalCapabilities returns the capability flags of p.
func (g *Guard) PrincipalCapabilities(ctx context.Context, p shared.Principal) map[string]bool {
	grant, err := g.grantFor(ctx, p)
	if err != nil {
		return catalog.NoCapabilities()
	}
	return catalog.Flags(grant.Permissions)
}

func (g *Guard) grantFor(ctx context.Context, p shared.Principal) (Grant, error) {
	var (
		ref RoleRef
		err error
	)
	switch {
	case p.UserID > 0:
		ref, err = g.store.RoleForUser(ctx, p.UserID)
	case p.RoleName != "":
		ref, err = g.store.RoleByName(ctx, p.RoleName)
	default:
		return Grant{}, shared.ErrUnauthorized
	}
	if err != nil {
		return Grant{}, err
	}
	if !ref.Active {
		return Grant{}, errInactive
	}
	return g.perms.Get(ctx, ref)
}

func (g *Guard) observe(capability string, allowed bool, reason string) {
	if g.observer != nil {
		g.observer.ObserveDecision(capability, allowed, reason)
	}
}
