package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Profile is the identity record for customers and admins.
type Profile struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email        string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string              `gorm:"column:password_hash;not null"`
	FullName     string              `gorm:"column:full_name;type:text;not null;default:''"`
	Phone        *string             `gorm:"column:phone;type:text"`
	Role         enums.ProfileRole   `gorm:"column:role;type:profile_role;not null;default:'customer'"`
	Status       enums.ProfileStatus `gorm:"column:status;type:profile_status;not null;default:'active'"`
	LastLogin    *time.Time          `gorm:"column:last_login"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
