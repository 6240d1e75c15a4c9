package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
)

type pubSubClient interface {
	Publish(ctx context.Context, channel string, payload any) (int64, error)
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
}

// Broker moves live events over Redis pub/sub.
type Broker struct {
	client   pubSubClient
	channels Channels
	logg     *logger.Logger
}

func NewBroker(client pubSubClient, channels Channels, logg *logger.Logger) (*Broker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Broker{client: client, channels: channels, logg: logg}, nil
}

func (b *Broker) Channels() Channels {
	return b.channels
}

// Publish sends the event to the customer's channel for the stream. Order
// events are mirrored onto the admin channel.
func (b *Broker) Publish(ctx context.Context, stream registry.Stream, customerID uuid.UUID, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode live event: %w", err)
	}
	if _, err := b.client.Publish(ctx, b.channels.For(stream, customerID), body); err != nil {
		return err
	}
	if stream == registry.StreamOrders {
		if _, err := b.client.Publish(ctx, b.channels.AdminOrders(), body); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe opens the customer's order and notification channels together.
func (b *Broker) Subscribe(ctx context.Context, customerID uuid.UUID) (*Subscription, error) {
	return b.subscribe(ctx, b.channels.Orders(customerID), b.channels.Notifications(customerID))
}

// SubscribeAdmin opens the admin order channel.
func (b *Broker) SubscribeAdmin(ctx context.Context) (*Subscription, error) {
	return b.subscribe(ctx, b.channels.AdminOrders())
}

func (b *Broker) subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	ps, err := b.client.Subscribe(ctx, channels...)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, subscriptionBuffer)
	sub := NewSubscription(events, ps.Close)
	go func() {
		defer close(events)
		for msg := range ps.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logg.Warn(b.logg.WithField(ctx, "channel", msg.Channel), "dropping undecodable live event")
				continue
			}
			select {
			case events <- event:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

const subscriptionBuffer = 64

// Subscription is an open live feed. Close releases the underlying channels.
type Subscription struct {
	events <-chan Event
	closer func() error
	done   chan struct{}
	once   sync.Once
	err    error
}

// NewSubscription wraps an event stream and its release function.
func NewSubscription(events <-chan Event, closer func() error) *Subscription {
	return &Subscription{events: events, closer: closer, done: make(chan struct{})}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			s.err = s.closer()
		}
	})
	return s.err
}
