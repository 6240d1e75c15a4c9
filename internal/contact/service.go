package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

// rowID is the id of the single contact_info row.
const rowID int64 = 1

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Input is the editable contact record.
type Input struct {
	Phone          string  `json:"phone" validate:"required,phone"`
	Email          string  `json:"email" validate:"required,email"`
	Address        string  `json:"address" validate:"required"`
	MapEmbedURL    *string `json:"map_embed_url,omitempty"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty"`
}

type Service struct {
	db    *gorm.DB
	tx    txRunner
	audit adminlogs.Recorder
}

func NewService(db *gorm.DB, tx txRunner, audit adminlogs.Recorder) (*Service, error) {
	if db == nil || tx == nil || audit == nil {
		return nil, fmt.Errorf("contact service dependencies required")
	}
	return &Service{db: db, tx: tx, audit: audit}, nil
}

// Get returns the contact record, or an empty one before the first save.
func (s *Service) Get(ctx context.Context) (*models.ContactInfo, error) {
	var info models.ContactInfo
	err := s.db.WithContext(ctx).First(&info, "id = ?", rowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ContactInfo{ID: rowID}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contact info")
	}
	return &info, nil
}

// Upsert overwrites the single contact row and logs the change.
func (s *Service) Upsert(ctx context.Context, actor auth.Actor, in Input) (*models.ContactInfo, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "contact info requires admin")
	}
	info := &models.ContactInfo{
		ID:             rowID,
		Phone:          strings.TrimSpace(in.Phone),
		Email:          strings.TrimSpace(in.Email),
		Address:        strings.TrimSpace(in.Address),
		MapEmbedURL:    in.MapEmbedURL,
		WhatsappNumber: in.WhatsappNumber,
	}
	if info.Phone == "" || info.Email == "" || info.Address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone, email and address are required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"phone", "email", "address", "map_embed_url", "whatsapp_number", "updated_at"}),
		}).Create(info).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save contact info")
		}
		return s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    actor.UserID,
			Action:     enums.AdminActionContactInfoUpdate,
			TargetType: enums.AdminTargetContactInfo,
			TargetID:   adminlogs.TargetID(rowID),
			Details:    in,
		})
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
