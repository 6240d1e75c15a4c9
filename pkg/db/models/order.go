package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Order is a customer order moving through the restaurant lifecycle.
type Order struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement"`
	CustomerID    uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index"`
	CustomerName  string            `gorm:"column:customer_name;type:text;not null"`
	CustomerPhone string            `gorm:"column:customer_phone;type:text;not null"`
	OrderDetails  string            `gorm:"column:order_details;type:text;not null"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	AdminNotes    *string           `gorm:"column:admin_notes;type:text"`
	ProcessedBy   *uuid.UUID        `gorm:"column:processed_by;type:uuid"`
	ProcessedAt   *time.Time        `gorm:"column:processed_at"`
	Version       int               `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
