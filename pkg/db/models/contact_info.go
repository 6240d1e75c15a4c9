package models

import "time"

// ContactInfo holds the restaurant's single public contact record.
type ContactInfo struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	Phone          string    `gorm:"column:phone;type:text;not null;default:''"`
	Email          string    `gorm:"column:email;type:text;not null;default:''"`
	Address        string    `gorm:"column:address;type:text;not null;default:''"`
	MapEmbedURL    *string   `gorm:"column:map_embed_url;type:text"`
	WhatsappNumber *string   `gorm:"column:whatsapp_number;type:text"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ContactInfo) TableName() string {
	return "contact_info"
}
