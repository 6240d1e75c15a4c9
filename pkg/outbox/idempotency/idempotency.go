// Package idempotency remembers which outbox events a consumer has already
// handled. A consumer first claims an event with a short lease, then either
// completes it (remembered for the retention window) or releases it so a
// redelivery can try again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	markerClaimed = "claimed"
	markerDone    = "done"

	DefaultLease = 2 * time.Minute
)

// State is the outcome of a claim attempt.
type State int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed State = iota
	// Done means an earlier delivery already finished the event.
	Done
	// InFlight means another worker holds the lease right now.
	InFlight
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store is the subset of the redis client the guard needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard tracks event ids per consumer under
// roha:idempotency:evt:<consumer>:<event_id>.
type Guard struct {
	store     Store
	retention time.Duration
	lease     time.Duration
}

// NewGuard keeps completed events for retention. A zero lease uses
// DefaultLease; the lease must stay shorter than retention.
func NewGuard(store Store, retention, lease time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	if lease >= retention {
		return nil, fmt.Errorf("lease %s must be shorter than retention %s", lease, retention)
	}
	return &Guard{store: store, retention: retention, lease: lease}, nil
}

// Claim tries to take ownership of eventID for consumer.
func (g *Guard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (State, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := g.store.SetNX(ctx, key, markerClaimed, g.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim %s: %w", eventID, err)
	}
	if ok {
		return Claimed, nil
	}
	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// lease expired between the two calls; let the redelivery retry
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read claim %s: %w", eventID, err)
	case marker == markerDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete marks a claimed event as handled for the retention window.
func (g *Guard) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.retention)
}

// Release drops a claim so the next delivery can handle the event.
func (g *Guard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
