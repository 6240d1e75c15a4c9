package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// OrderSnapshot is the full order row as pushed to live subscribers.
type OrderSnapshot struct {
	ID            int64             `json:"id"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	OrderDetails  string            `json:"order_details"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Status        enums.OrderStatus `json:"status"`
	AdminNotes    *string           `json:"admin_notes"`
	ProcessedBy   *uuid.UUID        `json:"processed_by"`
	ProcessedAt   *time.Time        `json:"processed_at"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func OrderSnapshotFrom(o models.Order) OrderSnapshot {
	return OrderSnapshot{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		OrderDetails:  o.OrderDetails,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		AdminNotes:    o.AdminNotes,
		ProcessedBy:   o.ProcessedBy,
		ProcessedAt:   o.ProcessedAt,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// NotificationSnapshot is the notification row as pushed to live subscribers.
type NotificationSnapshot struct {
	ID             int64                  `json:"id"`
	UserID         uuid.UUID              `json:"user_id"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Type           enums.NotificationType `json:"type"`
	Read           bool                   `json:"read"`
	RelatedOrderID *int64                 `json:"related_order_id"`
	CreatedAt      time.Time              `json:"created_at"`
}

func NotificationSnapshotFrom(n models.Notification) NotificationSnapshot {
	return NotificationSnapshot{
		ID:             n.ID,
		UserID:         n.UserID,
		Title:          n.Title,
		Message:        n.Message,
		Type:           n.Type,
		Read:           n.Read,
		RelatedOrderID: n.RelatedOrderID,
		CreatedAt:      n.CreatedAt,
	}
}

// Addressed is implemented by payloads that target a single customer.
type Addressed interface {
	Recipient() uuid.UUID
}

// OrderPlacedEvent is emitted when a customer places an order.
type OrderPlacedEvent struct {
	Order OrderSnapshot `json:"order"`
}

func (e OrderPlacedEvent) Recipient() uuid.UUID { return e.Order.CustomerID }

// OrderUpdatedEvent carries the full row after an admin transition.
type OrderUpdatedEvent struct {
	Order          OrderSnapshot     `json:"order"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
}

func (e OrderUpdatedEvent) Recipient() uuid.UUID { return e.Order.CustomerID }

// NotificationCreatedEvent carries a newly persisted notification.
type NotificationCreatedEvent struct {
	Notification NotificationSnapshot `json:"notification"`
}

func (e NotificationCreatedEvent) Recipient() uuid.UUID { return e.Notification.UserID }

// NotificationsReadEvent reports that a customer read one notification, or
// all of them when NotificationID is zero.
type NotificationsReadEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	NotificationID int64     `json:"notification_id,omitempty"`
	ReadAt         time.Time `json:"read_at"`
}

func (e NotificationsReadEvent) Recipient() uuid.UUID { return e.UserID }

// All reports whether the event covers the whole inbox.
func (e NotificationsReadEvent) All() bool { return e.NotificationID == 0 }
