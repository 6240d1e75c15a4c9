package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
)

// ConsumerName identifies the fan-out consumer for broker and idempotency keys.
const ConsumerName = "notification-subscriber"

type deliverySource interface {
	Consume(consumer string) (<-chan amqp.Delivery, error)
}

// Relay hands a notification to an external channel.
type Relay interface {
	Deliver(ctx context.Context, notification payloads.NotificationSnapshot) error
}

// LogRelay writes every relayed notification to the structured log.
type LogRelay struct {
	logg *logger.Logger
}

func NewLogRelay(logg *logger.Logger) *LogRelay {
	return &LogRelay{logg: logg}
}

func (r *LogRelay) Deliver(ctx context.Context, n payloads.NotificationSnapshot) error {
	fields := map[string]any{
		"notification_id": n.ID,
		"user_id":         n.UserID.String(),
		"type":            n.Type,
		"title":           n.Title,
		"message":         n.Message,
	}
	if n.RelatedOrderID != nil {
		fields["order_id"] = *n.RelatedOrderID
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "notification relayed")
	return nil
}

// Consumer reads notification_created events from the fan-out queue and
// relays each one at most once.
type Consumer struct {
	source      deliverySource
	registry    *registry.EventRegistry
	guard       *idempotency.Guard
	relay       Relay
	logg        *logger.Logger
}

// NewConsumer builds the fan-out notification consumer.
func NewConsumer(source deliverySource, reg *registry.EventRegistry, guard *idempotency.Guard, relay Relay, logg *logger.Logger) (*Consumer, error) {
	if source == nil {
		return nil, fmt.Errorf("delivery source required")
	}
	if reg == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if relay == nil {
		return nil, fmt.Errorf("relay required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		source:      source,
		registry:    reg,
		guard:       guard,
		relay:       relay,
		logg:        logg,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Consume(ConsumerName)
	if err != nil {
		return err
	}
	c.logg.Info(ctx, "notification consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			result := c.process(ctx, msg)
			if result.nack {
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) processResult {
	eventType := enums.OutboxEventType(msg.Type)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.MessageId,
		"event_type": msg.Type,
	})

	if eventType != enums.EventNotificationCreated {
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	resolved, err := c.registry.Decode(eventType, msg.Body)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	state, err := c.guard.Claim(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	switch state {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already relayed")
		return processResult{ack: true}
	case idempotency.InFlight:
		// another replica holds the lease; the redelivery lands after it
		// completes or the lease runs out
		c.logg.Debug(logCtx, "event claimed elsewhere")
		return processResult{nack: true}
	}

	payload, ok := resolved.Payload.(*payloads.NotificationCreatedEvent)
	if !ok {
		c.logg.Warn(logCtx, "unexpected payload type")
		_ = c.guard.Complete(ctx, ConsumerName, eventID)
		return processResult{ack: true}
	}

	if err := c.relay.Deliver(ctx, payload.Notification); err != nil {
		c.logg.Error(logCtx, "notification relay failed", err)
		if relErr := c.guard.Release(ctx, ConsumerName, eventID); relErr != nil {
			c.logg.Error(logCtx, "failed to release claim", relErr)
		}
		return processResult{nack: true}
	}
	if err := c.guard.Complete(ctx, ConsumerName, eventID); err != nil {
		c.logg.Error(logCtx, "failed to mark event relayed", err)
	}
	return processResult{ack: true}
}
