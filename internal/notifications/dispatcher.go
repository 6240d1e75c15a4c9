package notifications

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

const StatusUpdateTitle = "Order Status Updated"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DispatchInput describes a committed order status change.
type DispatchInput struct {
	OrderID    int64
	CustomerID uuid.UUID
	Status     enums.OrderStatus
	Notes      string
}

// Dispatcher turns order status changes into customer notifications.
type Dispatcher struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
}

func NewDispatcher(repo Repository, tx txRunner, emitter outbox.Emitter) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Dispatcher{repo: repo, tx: tx, outbox: emitter}, nil
}

// Dispatch persists exactly one notification for the change and queues its
// live event in the same transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, input DispatchInput) (*models.Notification, error) {
	if input.OrderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown status %q", input.Status)
	}

	notification := BuildStatusNotification(input)
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).Create(ctx, notification); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert notification")
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationCreated,
			AggregateType: enums.AggregateNotification,
			AggregateID:   strconv.FormatInt(notification.ID, 10),
			Data: payloads.NotificationCreatedEvent{
				Notification: payloads.NotificationSnapshotFrom(*notification),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return notification, nil
}

// BuildStatusNotification renders the customer-facing notification row.
func BuildStatusNotification(input DispatchInput) *models.Notification {
	message := fmt.Sprintf("Your order #%d has been %s.", input.OrderID, input.Status)
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		message += " Note: " + notes
	}
	orderID := input.OrderID
	return &models.Notification{
		UserID:         input.CustomerID,
		Title:          StatusUpdateTitle,
		Message:        message,
		Type:           TypeForStatus(input.Status),
		RelatedOrderID: &orderID,
	}
}

// TypeForStatus maps an order status onto the notification severity.
func TypeForStatus(status enums.OrderStatus) enums.NotificationType {
	switch status {
	case enums.OrderStatusAccepted:
		return enums.NotificationTypeSuccess
	case enums.OrderStatusRejected:
		return enums.NotificationTypeError
	default:
		return enums.NotificationTypeInfo
	}
}
