package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// MenuItem is a dish or drink offered on the public menu.
type MenuItem struct {
	ID          int64              `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string             `gorm:"column:name;type:text;not null"`
	Description string             `gorm:"column:description;type:text;not null;default:''"`
	Price       decimal.Decimal    `gorm:"column:price;type:numeric(10,2);not null"`
	Category    enums.MenuCategory `gorm:"column:category;type:text;not null"`
	ImageURL    *string            `gorm:"column:image_url;type:text"`
	Size        string             `gorm:"column:size;type:text;not null;default:''"`
	Popular     bool               `gorm:"column:popular;not null;default:false"`
	Spicy       bool               `gorm:"column:spicy;not null;default:false"`
	Available   bool               `gorm:"column:available;not null"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
