package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID             int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Title          string                 `gorm:"column:title;type:text;not null"`
	Message        string                 `gorm:"column:message;type:text;not null"`
	Type           enums.NotificationType `gorm:"column:type;type:notification_type;not null;default:'info'"`
	Read           bool                   `gorm:"column:read;not null;default:false"`
	RelatedOrderID *int64                 `gorm:"column:related_order_id"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}
