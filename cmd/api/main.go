package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/roha-backend/api"
	"github.com/angelmondragon/roha-backend/api/controllers"
	"github.com/angelmondragon/roha-backend/api/routes"
	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/internal/auth"
	"github.com/angelmondragon/roha-backend/internal/contact"
	"github.com/angelmondragon/roha-backend/internal/dashboard"
	"github.com/angelmondragon/roha-backend/internal/menu"
	"github.com/angelmondragon/roha-backend/internal/notifications"
	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/internal/orderview"
	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/internal/users"
	pkgauth "github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/auth/session"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	"github.com/angelmondragon/roha-backend/pkg/migrate"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/redis"
	"github.com/angelmondragon/roha-backend/pkg/tracing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	shutdownTracing, err := tracing.Setup(context.Background(), "roha-api", cfg.Tracing)
	if err != nil {
		logg.Error(context.Background(), "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := dbClient.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "database pool metrics unavailable")
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()
	if err := redisClient.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(context.Background(), "redis pool metrics unavailable")
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	signer, err := pkgauth.NewSigner(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "invalid jwt settings", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, sessionManager, signer)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	srv := api.NewServer(fmt.Sprintf(":%s", port), routes.NewRouter(deps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := api.Serve(ctx, srv, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "server error", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api stopped")
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sessionManager *session.Manager,
	signer *pkgauth.Signer,
) (routes.Dependencies, error) {
	conn := dbClient.DB()

	audit, err := adminlogs.NewService(adminlogs.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("admin logs: %w", err)
	}

	userRepo := users.NewRepository(conn)
	userService, err := users.NewService(users.ServiceParams{
		Repo:     userRepo,
		Tx:       dbClient,
		Audit:    audit,
		Password: cfg.Password,
		Sessions: sessionManager,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("users: %w", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		Tokens:         signer,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("auth: %w", err)
	}

	menuService, err := menu.NewService(menu.NewRepository(conn), dbClient, audit, logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("menu: %w", err)
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	notificationRepo := notifications.NewRepository(conn)
	notificationService, err := notifications.NewService(notificationRepo, dbClient, emitter)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("notifications: %w", err)
	}
	dispatcher, err := notifications.NewDispatcher(notificationRepo, dbClient, emitter)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("notification dispatcher: %w", err)
	}

	pricing, err := orders.PricingFromConfig(cfg.Orders)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("order pricing: %w", err)
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Tx:       dbClient,
		Outbox:   emitter,
		Audit:    audit,
		Notifier: dispatcher,
		Menu:     menuService,
		Pricing:  pricing,
		Metrics:  metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders: %w", err)
	}

	contactService, err := contact.NewService(conn, dbClient, audit)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("contact: %w", err)
	}
	dashboardService, err := dashboard.NewService(orderService, userService)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("dashboard: %w", err)
	}

	broker, err := realtime.NewBroker(redisClient, realtime.NewChannels(cfg.Realtime.ChannelPrefix), logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("live broker: %w", err)
	}

	return routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Checks: []controllers.Check{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
		},
		Sessions:      sessionManager,
		Tokens:        signer,
		RateLimiter:   redisClient,
		Idempotency:   redisClient,
		Metrics:       prometheus.DefaultGatherer,
		HTTPMetrics:   metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Auth:          authService,
		Profiles:      userService,
		Users:         userService,
		Menu:          menuService,
		Orders:        orderService,
		Transitions:   orderService,
		Console:       orderview.NewConsole(orderService),
		Notifications: notificationService,
		CustomerView: orderview.Deps{
			Orders:        orderService,
			Notifications: notificationService,
			Live:          broker,

			NotificationLimit: cfg.Realtime.NotificationLimit,
		},
		AdminLive: broker,
		AdminLogs: audit,
		Contact:   contactService,
		Dashboard: dashboardService,
	}, nil
}
