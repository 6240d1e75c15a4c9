package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set compiled into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(out, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.Validate(source(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if dbClient.IsSQLite() {
		if *cmd != "up" {
			fail("sqlite only supports -cmd=up (gorm automigrate)")
		}
		requireResource(ctx, logg, "sqlite automigrate", migrate.AutoMigrate(ctx, dbClient))
		fmt.Println("sqlite schema up to date")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	runner, err := migrate.NewRunner(sqlDB, source(*dir))
	requireResource(ctx, logg, "goose provider", err)

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		printApplied(applied)
		if err != nil {
			fail("%v", err)
		}
	case "down":
		applied, err := runner.Down(ctx)
		if err != nil {
			fail("%v", err)
		}
		printApplied([]migrate.Applied{applied})
	case "status":
		rows, err := runner.Status(ctx)
		if err != nil {
			fail("%v", err)
		}
		printStatus(rows)
	case "version":
		if *target == "" {
			v, err := runner.Version(ctx)
			if err != nil {
				fail("%v", err)
			}
			fmt.Println(v)
			return
		}
		applied, err := runner.To(ctx, *target)
		printApplied(applied)
		if err != nil {
			fail("%v", err)
		}
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func printApplied(applied []migrate.Applied) {
	if len(applied) == 0 {
		fmt.Println("no migrations to run")
		return
	}
	for _, a := range applied {
		fmt.Printf("%-4s %d %s (%s)\n", a.Direction, a.Version, a.Name, a.Duration)
	}
}

func printStatus(rows []migrate.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tNAME")
	for _, row := range rows {
		state, at := "pending", "-"
		if row.Applied {
			state, at = "applied", row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", row.Version, state, at, row.Name)
	}
	_ = w.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
