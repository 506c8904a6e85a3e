package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Authenticated only requires a resolved principal.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, p shared.Principal) bool { return true })
}

// Require ensures the current principal holds capability.
func (m Middleware) Require(capability string) func(http.Handler) http.Handler {
	return m.RequireAny(capability)
}

// RequireAny ensures the current principal holds at least one of perms.
// With no perms it behaves like Authenticated.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(r *http.Request, p shared.Principal) bool {
		if len(normalized) == 0 {
			return true
		}
		if m.Authorizer == nil {
			return false
		}
		for _, perm := range normalized {
			if m.Authorizer.Authorize(r.Context(), p, perm) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current principal holds every one of perms.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(r *http.Request, p shared.Principal) bool {
		if m.Authorizer == nil && len(normalized) > 0 {
			return false
		}
		for _, perm := range normalized {
			if !m.Authorizer.Authorize(r.Context(), p, perm) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) guard(allowed func(*http.Request, shared.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if !allowed(r, p) {
				if m.Logger != nil {
					m.Logger.Debug("rbac denied", slog.String("path", r.URL.Path), slog.Int64("user_id", p.UserID))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// normalizePermissions maps identifiers onto catalog names. Unknown names are
// kept verbatim so that the authorizer denies them.
func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if name := catalog.Normalize(p); name != "" {
			p = name
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
