package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/AmirIqbalKhan/dashboard/internal/app"
	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/auth"
	"github.com/AmirIqbalKhan/dashboard/internal/calendar"
	"github.com/AmirIqbalKhan/dashboard/internal/fanout"
	"github.com/AmirIqbalKhan/dashboard/internal/news"
	"github.com/AmirIqbalKhan/dashboard/internal/notifications"
	"github.com/AmirIqbalKhan/dashboard/internal/observability"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/cache"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/products"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/roles"
	"github.com/AmirIqbalKhan/dashboard/internal/settings"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
	"github.com/AmirIqbalKhan/dashboard/internal/users"
	"github.com/AmirIqbalKhan/dashboard/jobs"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionStore(redisClient, cfg.SessionCookie, cfg.SessionTTL)
	recorder := audit.NewRecorder(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	permCache := rbac.NewPermissionCache(rbac.NewPgStore(pool), cache.NewJSON(redisClient, "dashboard", cfg.RBACCacheTTL), logger)
	guard := rbac.NewGuard(rbac.NewPgStore(pool), permCache, logger, metrics)
	rbacMiddleware := rbac.Middleware{Authorizer: guard, Logger: logger}

	redisOpts := cfg.Redis().AsynqOpt()
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	engine := fanout.NewEngine(pool, recorder, metrics)

	authService := auth.NewService(auth.NewRepository(pool), sessions)
	usersService := users.NewService(users.NewRepository(pool, recorder), cfg.DefaultSignupRole)
	rolesService := roles.NewService(roles.NewRepository(pool, recorder), cfg.DefaultSignupRole)
	notificationsService := notifications.NewService(pool, engine, idempotency, jobsClient, logger)
	productsService := products.NewService(products.NewRepository(pool, recorder))
	newsService := news.NewService(news.NewRepository(pool, recorder))
	calendarService := calendar.NewService(calendar.NewRepository(pool, recorder))
	settingsService := settings.NewService(
		settings.NewRepository(pool, recorder),
		cache.NewJSON(redisClient, "dashboard", cfg.SettingsCacheTTL),
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Sessions: sessions,
		Metrics:  metrics,
		Checks: map[string]app.Pinger{
			"postgres": pool,
			"redis":    redisPinger{redisClient},
		},
		AuthHandler: auth.NewHandler(logger, authService, sessions, cfg.IsProduction()),
		AuditHandler:         audit.NewHandler(logger, recorder, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, rolesService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, guard, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, usersService, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notificationsService, rbacMiddleware),
		ProductsHandler:      products.NewHandler(logger, productsService, rbacMiddleware),
		NewsHandler:          news.NewHandler(logger, newsService, rbacMiddleware),
		CalendarHandler:      calendar.NewHandler(logger, calendarService, rbacMiddleware),
		SettingsHandler:      settings.NewHandler(logger, settingsService, rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", slog.Any("error", err))
	}
	logger.Info("http server stopped")
}
