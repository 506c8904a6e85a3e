package rbac

import (
	"context"

	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Authorizer decides whether a principal may exercise a capability.
type Authorizer interface {
	Authorize(ctx context.Context, p shared.Principal, capability string) bool
}

// RoleRef identifies a role at a specific version.
type RoleRef struct {
	ID      int64
	Name    string
	Version int64
	// Active is false when the role was resolved through a deactivated user.
	Active bool
}

// Grant is the permission set of a role at a version.
type Grant struct {
	RoleID      int64    `json:"roleId"`
	Version     int64    `json:"version"`
	Permissions []string `json:"permissions"`
}

// Has reports whether the grant contains the permission name.
func (g Grant) Has(name string) bool {
	for _, p := range g.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// DecisionObserver receives every authorization outcome.
type DecisionObserver interface {
	ObserveDecision(capability string, allowed bool, reason string)
}
