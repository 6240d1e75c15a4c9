package enums

import "fmt"

// OutboxAggregateType names the row an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateNotification OutboxAggregateType = "notification"
	// AggregateUser keys events about a customer's whole inbox.
	AggregateUser OutboxAggregateType = "user"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateNotification, AggregateUser:
		return true
	}
	return false
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderPlaced         OutboxEventType = "order_placed"
	EventOrderUpdated        OutboxEventType = "order_updated"
	EventNotificationCreated OutboxEventType = "notification_created"
	EventNotificationsRead   OutboxEventType = "notifications_read"
)

// every event belongs to exactly one aggregate
var eventAggregate = map[OutboxEventType]OutboxAggregateType{
	EventOrderPlaced:         AggregateOrder,
	EventOrderUpdated:        AggregateOrder,
	EventNotificationCreated: AggregateNotification,
	EventNotificationsRead:   AggregateUser,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregate[e]
	return ok
}

// Aggregate is empty for unknown event types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregate[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
