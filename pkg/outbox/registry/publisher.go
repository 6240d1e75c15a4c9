// Package registry knows how to turn a stored outbox row back into a typed
// event and where that event is delivered.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

// Stream names the live channel family an event is delivered on.
type Stream string

const (
	StreamOrders        Stream = "orders"
	StreamNotifications Stream = "notifications"
)

type EventDescriptor struct {
	EventType enums.OutboxEventType
	Stream    Stream
	// Fanout marks events that are also published to the broker exchange.
	Fanout     bool
	newPayload func() payloads.Addressed
}

func (d EventDescriptor) Aggregate() enums.OutboxAggregateType {
	return d.EventType.Aggregate()
}

// describe binds an event type to the payload struct P it carries.
func describe[P any, PT interface {
	*P
	payloads.Addressed
}](eventType enums.OutboxEventType, stream Stream, fanout bool) EventDescriptor {
	return EventDescriptor{
		EventType:  eventType,
		Stream:     stream,
		Fanout:     fanout,
		newPayload: func() payloads.Addressed { return PT(new(P)) },
	}
}

// ResolvedEvent is a decoded outbox row plus the customer it is addressed to.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    payloads.Addressed
	Recipient  uuid.UUID
}

// NonRetryableError marks a row that will fail the same way on every
// attempt, so the publisher parks it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err, or anything it wraps, is non-retryable.
func IsPermanent(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry() *EventRegistry {
	descriptors := []EventDescriptor{
		describe[payloads.OrderPlacedEvent](enums.EventOrderPlaced, StreamOrders, false),
		describe[payloads.OrderUpdatedEvent](enums.EventOrderUpdated, StreamOrders, false),
		describe[payloads.NotificationCreatedEvent](enums.EventNotificationCreated, StreamNotifications, true),
		describe[payloads.NotificationsReadEvent](enums.EventNotificationsRead, StreamNotifications, false),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row's bookkeeping columns and decodes its payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.Aggregate() != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.Aggregate(), event.AggregateType)
	case event.AggregateID == "":
		return nil, permanent("missing aggregate_id")
	}
	return r.Decode(event.EventType, event.Payload)
}

// Decode parses a raw envelope for the given event type. Broker consumers
// only see the envelope bytes and call it directly.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, raw []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, permanent("unsupported event type %s", eventType)
	}

	envelope, err := outbox.DecodeEnvelope(raw)
	if err != nil {
		return nil, permanent("%s: %w", eventType, err)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", eventType, err)
	}
	recipient := payload.Recipient()
	if recipient == uuid.Nil {
		return nil, permanent("%s payload has no recipient", eventType)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload, Recipient: recipient}, nil
}
