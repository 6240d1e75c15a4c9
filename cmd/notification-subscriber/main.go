package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/roha-backend/internal/notifications"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
	"github.com/angelmondragon/roha-backend/pkg/rabbitmq"
	"github.com/angelmondragon/roha-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: notifications.ConsumerName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = notifications.ConsumerName

	logg = logger.New(logger.Options{
		ServiceName: notifications.ConsumerName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if !cfg.RabbitMQ.Enabled() {
		requireResource(ctx, logg, "rabbitmq", errors.New("ROHA_RABBITMQ_URL is not set"))
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	rabbitClient, err := rabbitmq.NewClient(context.Background(), cfg.RabbitMQ, logg)
	requireResource(ctx, logg, "rabbitmq", err)
	defer func() {
		if err := rabbitClient.Close(); err != nil {
			logg.Error(ctx, "failed to close rabbitmq client", err)
		}
	}()

	guard, err := idempotency.NewGuard(redisClient, cfg.RabbitMQ.IdempotencyTTL, cfg.RabbitMQ.ClaimLease)
	requireResource(ctx, logg, "idempotency guard", err)

	consumer, err := notifications.NewConsumer(rabbitClient, registry.NewEventRegistry(), guard, notifications.NewLogRelay(logg), logg)
	requireResource(ctx, logg, "notification consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"queue":       cfg.RabbitMQ.Queue,
	})
	logg.Info(runCtx, "notification subscriber ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification subscriber failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
