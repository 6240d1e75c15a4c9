package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/repo"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error)
	// MarkRead reports whether the user owns the notification. Marking an
	// already read row is not an error.
	MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type listQuery struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type repositoryImpl struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{Base: r.Bind(tx)}
}

func ownedBy(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) }
}

func unread(db *gorm.DB) *gorm.DB { return db.Where("read = ?", false) }

func (r *repositoryImpl) notifications(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Model(&models.Notification{})
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.DB(ctx).Create(notification).Error
}

func (r *repositoryImpl) List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error) {
	scopes := []func(*gorm.DB) *gorm.DB{ownedBy(q.UserID), pagination.After(q.Cursor)}
	if q.UnreadOnly {
		scopes = append(scopes, unread)
	}

	var rows []models.Notification
	err := r.notifications(ctx).Scopes(scopes...).
		Scopes(repo.NewestFirst("")).
		Limit(pagination.Limit(q.Limit) + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Cut(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) (bool, error) {
	res := r.notifications(ctx).Scopes(ownedBy(userID), unread).
		Where("id = ?", notificationID).
		UpdateColumn("read", true)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.RowsAffected > 0, res.Error
	}

	var count int64
	err := r.notifications(ctx).Scopes(ownedBy(userID)).
		Where("id = ?", notificationID).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.notifications(ctx).Scopes(ownedBy(userID), unread).UpdateColumn("read", true)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.notifications(ctx).Scopes(ownedBy(userID), unread).Count(&count).Error
	return count, err
}

// DeleteReadBefore prunes read notifications created before cutoff.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
