package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/app"
	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/roles"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
	"github.com/AmirIqbalKhan/dashboard/internal/users"
	"github.com/AmirIqbalKhan/dashboard/migrations"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	recorder := audit.NewRecorder(pool)
	rolesService := roles.NewService(roles.NewRepository(pool, recorder), cfg.DefaultSignupRole)
	usersService := users.NewService(users.NewRepository(pool, recorder), cfg.DefaultSignupRole)

	fmt.Println("→ Seeding permissions and roles...")
	result, err := rolesService.Seed(ctx)
	if err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	fmt.Printf("  %d permissions, created roles: %s\n", result.Permissions, strings.Join(result.CreatedRoles, ", "))

	fmt.Println("→ Seeding admin user...")
	if err := seedAdmin(ctx, rolesService, usersService); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	fmt.Println("✓ Seed complete")
}

func seedAdmin(ctx context.Context, rolesService *roles.Service, usersService *users.Service) error {
	email := getenv("SEED_ADMIN_EMAIL", "admin@example.com")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		fmt.Println("  SEED_ADMIN_PASSWORD not set, skipping")
		return nil
	}
	role, err := rolesService.FindByName(ctx, catalog.RoleAdmin)
	if err != nil {
		return err
	}
	_, err = usersService.Create(ctx, 0, users.CreateInput{
		Email:    email,
		Name:     getenv("SEED_ADMIN_NAME", "Administrator"),
		Password: password,
		RoleID:   role.ID,
	}, true)
	if errors.Is(err, shared.ErrConflict) {
		fmt.Printf("  %s already exists\n", email)
		return nil
	}
	return err
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
