package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db"
	"github.com/angelmondragon/roha-backend/pkg/instance"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	"github.com/angelmondragon/roha-backend/pkg/migrate"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
	"github.com/angelmondragon/roha-backend/pkg/rabbitmq"
	"github.com/angelmondragon/roha-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

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

	broker, err := realtime.NewBroker(redisClient, realtime.NewChannels(cfg.Realtime.ChannelPrefix), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create live broker", err)
		os.Exit(1)
	}

	params := ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Live:       broker,
		LivePing:   redisClient.Ping,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   registry.NewEventRegistry(),
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	}

	if cfg.RabbitMQ.Enabled() {
		rabbitClient, err := rabbitmq.NewClient(context.Background(), cfg.RabbitMQ, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap rabbitmq", err)
			os.Exit(1)
		}
		defer func() {
			if err := rabbitClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing rabbitmq", err)
			}
		}()
		params.Fanout = rabbitClient
	} else {
		logg.Warn(context.Background(), "rabbitmq disabled, notification fan-out skipped")
	}

	service, err := NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "starting outbox publisher")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
