package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// CapabilityResolver computes capability flags from the persisted role graph.
type CapabilityResolver interface {
	CapabilitiesFor(ctx context.Context, roleName string) map[string]bool
	PrincipalCapabilities(ctx context.Context, p shared.Principal) map[string]bool
}

// PermissionsHandler exposes the catalog and capability flags.
type PermissionsHandler struct {
	logger   *slog.Logger
	resolver CapabilityResolver
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, resolver CapabilityResolver, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, resolver: resolver, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated())
		r.Get("/me", h.myCapabilities)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ViewRoles))
		r.Get("/catalog", h.listCatalog)
		r.Get("/roles/{name}", h.roleCapabilities)
	})
}

type capabilitiesResponse struct {
	Role         string          `json:"role"`
	Capabilities map[string]bool `json:"capabilities"`
}

func (h *PermissionsHandler) myCapabilities(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, capabilitiesResponse{
		Role:         p.RoleName,
		Capabilities: h.resolver.PrincipalCapabilities(r.Context(), p),
	})
}

func (h *PermissionsHandler) roleCapabilities(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	httpx.JSON(w, http.StatusOK, capabilitiesResponse{
		Role:         name,
		Capabilities: h.resolver.CapabilitiesFor(r.Context(), name),
	})
}

func (h *PermissionsHandler) listCatalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, catalog.Permissions())
}
