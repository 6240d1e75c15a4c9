package adminlogs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/repo"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Repository persists admin audit entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.AdminLog) error
	List(ctx context.Context, filter ListFilter) ([]Row, error)
}

// ListFilter narrows the audit log listing.
type ListFilter struct {
	Action *enums.AdminActionType
	Since  *time.Time
	Limit  int
}

// Row is an audit entry joined with the acting admin's name.
type Row struct {
	models.AdminLog
	AdminName *string `gorm:"column:admin_name"`
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Insert(ctx context.Context, entry *models.AdminLog) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Row, error) {
	q := r.DB(ctx).
		Table("admin_logs AS l").
		Select("l.*, p.full_name AS admin_name").
		Joins("LEFT JOIN profiles p ON p.id = l.admin_id")
	if filter.Action != nil {
		q = q.Where("l.action_type = ?", *filter.Action)
	}
	if filter.Since != nil {
		q = q.Where("l.created_at >= ?", *filter.Since)
	}

	var rows []Row
	err := q.Scopes(repo.NewestFirst("l")).
		Limit(filter.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
