package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/internal/menu"
	"github.com/angelmondragon/roha-backend/internal/users"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/migrate"
)

const defaultMenuFile = "cmd/seed/data/menu.yaml"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	menuFile := flag.String("menu", defaultMenuFile, "menu items YAML file; empty skips the menu")
	adminEmail := flag.String("admin-email", "", "create an admin profile with this email")
	adminPassword := flag.String("admin-password", "", "password for -admin-email")
	adminName := flag.String("admin-name", "", "display name for -admin-email")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	audit, err := adminlogs.NewService(adminlogs.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "admin log service", err)

	if *menuFile != "" {
		menuService, err := menu.NewService(menu.NewRepository(dbClient.DB()), dbClient, audit, logg)
		requireResource(ctx, logg, "menu service", err)

		items, err := readMenu(*menuFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "menu seed failed: %v\n", err)
			os.Exit(1)
		}
		result, err := menuService.Seed(ctx, items)
		if err != nil {
			fmt.Fprintf(os.Stderr, "menu seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("menu: %d created, %d already present\n", result.Created, result.Skipped)
	}

	if *adminEmail != "" {
		userService, err := users.NewService(users.ServiceParams{
			Repo:     users.NewRepository(dbClient.DB()),
			Tx:       dbClient,
			Audit:    audit,
			Password: cfg.Password,
		})
		requireResource(ctx, logg, "user service", err)

		created, err := userService.EnsureAdmin(ctx, *adminEmail, *adminPassword, *adminName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admin seed failed: %v\n", err)
			os.Exit(1)
		}
		if created {
			fmt.Println("admin created:", *adminEmail)
		} else {
			fmt.Println("admin already present:", *adminEmail)
		}
	}
}

func readMenu(path string) ([]menu.ItemInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return menu.ParseSeed(f)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
