package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// AdminLog is an append-only audit entry for admin actions.
type AdminLog struct {
	ID         int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	AdminID    uuid.UUID             `gorm:"column:admin_id;type:uuid;not null;index"`
	ActionType enums.AdminActionType `gorm:"column:action_type;type:text;not null"`
	TargetType enums.AdminTargetType `gorm:"column:target_type;type:text;not null"`
	TargetID   string                `gorm:"column:target_id;type:text;not null"`
	Details    json.RawMessage       `gorm:"column:details;type:jsonb;not null"`
	IPAddress  *string               `gorm:"column:ip_address;type:text"`
	UserAgent  *string               `gorm:"column:user_agent;type:text"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}
