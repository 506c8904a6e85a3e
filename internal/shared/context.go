package shared

import "context"

// Principal is the authenticated actor resolved from a session.
type Principal struct {
	UserID   int64  `json:"userId"`
	Email    string `json:"email"`
	RoleName string `json:"role"`
}

// Anonymous reports whether the principal carries no identity at all.
func (p Principal) Anonymous() bool {
	return p.UserID == 0 && p.RoleName == ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || p.Anonymous() {
		return Principal{}, false
	}
	return p, true
}
