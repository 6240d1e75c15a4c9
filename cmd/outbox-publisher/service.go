package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
	"github.com/angelmondragon/roha-backend/pkg/rabbitmq"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxErrorBackoff       = 10 * time.Second
)

// outcome is what happened to one row in a batch. The string doubles as the
// metrics result label.
type outcome string

const (
	outcomePublished outcome = metrics.ResultOK
	outcomeFailed    outcome = metrics.ResultError
	outcomeTerminal  outcome = "terminal"
	// deferred rows sit behind a failed row of the same aggregate and wait
	// for the next batch so their channel never sees them out of order.
	outcomeDeferred outcome = "deferred"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type livePublisher interface {
	Publish(ctx context.Context, stream registry.Stream, customerID uuid.UUID, event realtime.Event) error
}

type fanoutPublisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Live       livePublisher
	LivePing   func(context.Context) error
	Fanout     fanoutPublisher
	Repository outboxRepository
	Registry   registryResolver
	Metrics    *metrics.OutboxMetrics
}

// Service drains committed outbox rows onto the live channels and, for
// fan-out events, the broker exchange.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	repo     outboxRepository
	live     livePublisher
	livePing func(context.Context) error
	fanout   fanoutPublisher
	registry registryResolver
	metrics  *metrics.OutboxMetrics

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Live == nil:
		return nil, errors.New("live publisher is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		live:         params.Live,
		livePing:     params.LivePing,
		fanout:       params.Fanout,
		registry:     params.Registry,
		metrics:      params.Metrics,
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

type dependency struct {
	name string
	ping func(context.Context) error
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	deps := []dependency{{"database", s.db.Ping}, {"redis", s.livePing}}
	if s.fanout != nil {
		deps = append(deps, dependency{"rabbitmq", s.fanout.Ping})
	}
	for _, d := range deps {
		if d.ping == nil {
			continue
		}
		if err := d.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", d.name, err)
		}
	}
	return nil
}

// Run polls until ctx ends. An idle poll waits pollInterval. A batch that
// errored or left any row failed backs off exponentially up to
// maxErrorBackoff. A clean non-empty batch polls again straight away.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.InitialInterval = s.pollInterval
	errBackoff.MaxInterval = maxErrorBackoff

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		report, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = errBackoff.NextBackOff()
		case report.failed > 0:
			wait = errBackoff.NextBackOff()
		case report.fetched > 0:
			errBackoff.Reset()
			continue
		default:
			errBackoff.Reset()
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// batchReport counts what one batch did. Deferred rows count as failed
// because they wait on a failure too.
type batchReport struct {
	fetched int
	failed  int
}

// processBatch publishes one locked batch in commit order. Rows stay locked
// until the transaction ends so a second publisher never reorders a channel.
func (s *Service) processBatch(ctx context.Context) (batchReport, error) {
	var report batchReport
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		report.fetched = len(events)

		held := map[string]bool{}
		for _, event := range events {
			key := string(event.AggregateType) + ":" + event.AggregateID
			if held[key] {
				report.failed++
				s.metrics.ObservePublish(string(event.EventType), string(outcomeDeferred))
				continue
			}
			result, err := s.handle(ctx, tx, event)
			if err != nil {
				return err
			}
			if result == outcomeFailed {
				report.failed++
				held[key] = true
			}
			s.metrics.ObservePublish(string(event.EventType), string(result))
		}
		return nil
	})
	return report, err
}

// handle publishes one row and records the result on it. The returned error
// is a storage failure that aborts the batch.
func (s *Service) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, nil, err)
	}
	fields := s.eventFields(event, resolved)

	pubErr := s.publishResolved(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	if registry.IsPermanent(pubErr) {
		return s.park(ctx, tx, event, fields, pubErr)
	}
	next := event
	next.AttemptCount++
	fields["attempt_count"] = next.AttemptCount
	if next.Exhausted(s.maxAttempts) {
		fields["terminal_reason"] = "max_attempts"
		return s.park(ctx, tx, event, fields, fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, pubErr)), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeFailed, nil
}

// park retires a row that can never be delivered. Live clients recover from
// the gap on their next snapshot.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, fields map[string]any, cause error) (outcome, error) {
	if fields == nil {
		fields = s.eventFields(event, nil)
	}
	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, cause)), "outbox event will not be retried")
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return outcomeTerminal, nil
}

// publishResolved pushes the event to the recipient's live channel and, when
// the descriptor asks for it, to the fan-out exchange. A retry after a fan-out
// failure repeats the live push; subscribers drop the duplicate.
func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	live, err := realtime.EventFrom(resolved)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	if err := s.live.Publish(publishCtx, resolved.Descriptor.Stream, resolved.Recipient, live); err != nil {
		return fmt.Errorf("publish live %s: %w", resolved.Descriptor.Stream, err)
	}
	if !resolved.Descriptor.Fanout || s.fanout == nil {
		return nil
	}
	err = s.fanout.Publish(publishCtx, rabbitmq.Message{
		ID:   resolved.Envelope.EventID,
		Type: string(event.EventType),
		Body: event.Payload,
	})
	if err != nil {
		return fmt.Errorf("publish fanout: %w", err)
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		if env := resolved.Envelope; env.EventID != "" {
			fields["event_id"] = env.EventID
			fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
			if env.CorrelationID != "" {
				fields["correlation_id"] = env.CorrelationID
			}
		}
		fields["stream"] = resolved.Descriptor.Stream
		fields["recipient"] = resolved.Recipient.String()
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
