package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/auth"
	"github.com/AmirIqbalKhan/dashboard/internal/calendar"
	"github.com/AmirIqbalKhan/dashboard/internal/news"
	"github.com/AmirIqbalKhan/dashboard/internal/notifications"
	"github.com/AmirIqbalKhan/dashboard/internal/observability"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/products"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/roles"
	"github.com/AmirIqbalKhan/dashboard/internal/settings"
	"github.com/AmirIqbalKhan/dashboard/internal/users"
	"github.com/AmirIqbalKhan/dashboard/jobs"
)

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions PrincipalResolver
	Metrics  *observability.Metrics
	Checks   map[string]Pinger

	AuthHandler          *auth.Handler
	AuditHandler         *audit.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	UsersHandler         *users.Handler
	NotificationsHandler *notifications.Handler
	ProductsHandler      *products.Handler
	NewsHandler          *news.Handler
	CalendarHandler      *calendar.Handler
	SettingsHandler      *settings.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with dashboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Checks))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/signup", params.UsersHandler.MountSignup)
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/capabilities", params.PermissionsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit-logs", params.AuditHandler.MountRoutes)
		}
		if params.NotificationsHandler != nil {
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		}
		if params.ProductsHandler != nil {
			r.Route("/products", params.ProductsHandler.MountRoutes)
		}
		if params.NewsHandler != nil {
			r.Route("/news", params.NewsHandler.MountRoutes)
		}
		if params.CalendarHandler != nil {
			r.Route("/calendar/events", params.CalendarHandler.MountRoutes)
		}
		if params.SettingsHandler != nil {
			r.Route("/settings", params.SettingsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no such endpoint")
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		httpx.JSON(w, status, resp)
	}
}
