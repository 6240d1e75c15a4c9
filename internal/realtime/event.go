package realtime

import (
	"fmt"
	"time"

	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
)

// Event is the JSON message carried on a live channel.
type Event struct {
	ID             string                           `json:"id"`
	Type           enums.OutboxEventType            `json:"type"`
	OccurredAt     time.Time                        `json:"occurred_at"`
	Order          *payloads.OrderSnapshot          `json:"order,omitempty"`
	PreviousStatus enums.OrderStatus                `json:"previous_status,omitempty"`
	Notification   *payloads.NotificationSnapshot   `json:"notification,omitempty"`
	Read           *payloads.NotificationsReadEvent `json:"read,omitempty"`
}

// IsOrderEvent reports whether the event carries an order row.
func (e Event) IsOrderEvent() bool {
	return e.Order != nil
}

// EventFrom flattens a decoded outbox row into a live event.
func EventFrom(resolved *registry.ResolvedEvent) (Event, error) {
	if resolved == nil {
		return Event{}, fmt.Errorf("resolved event required")
	}
	event := Event{
		ID:         resolved.Envelope.EventID,
		Type:       resolved.Descriptor.EventType,
		OccurredAt: resolved.Envelope.OccurredAt,
	}
	switch p := resolved.Payload.(type) {
	case *payloads.OrderPlacedEvent:
		order := p.Order
		event.Order = &order
	case *payloads.OrderUpdatedEvent:
		order := p.Order
		event.Order = &order
		event.PreviousStatus = p.PreviousStatus
	case *payloads.NotificationCreatedEvent:
		n := p.Notification
		event.Notification = &n
	case *payloads.NotificationsReadEvent:
		read := *p
		event.Read = &read
	default:
		return Event{}, fmt.Errorf("no live mapping for %T", resolved.Payload)
	}
	return event, nil
}
