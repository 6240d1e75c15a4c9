package menu

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/repo"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.MenuItem) error
	Update(ctx context.Context, id int64, fields map[string]any) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*models.MenuItem, error)
	FindByNameAndSize(ctx context.Context, name, size string) (*models.MenuItem, error)
	List(ctx context.Context, availableOnly bool) ([]models.MenuItem, error)
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

func (r *repository) Create(ctx context.Context, item *models.MenuItem) error {
	return r.DB(ctx).Create(item).Error
}

func (r *repository) Update(ctx context.Context, id int64, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.DB(ctx).Model(&models.MenuItem{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	res := r.DB(ctx).Delete(&models.MenuItem{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.DB(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByNameAndSize(ctx context.Context, name, size string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.DB(ctx).Where("name = ? AND size = ?", name, size).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// List orders by category, then name.
func (r *repository) List(ctx context.Context, availableOnly bool) ([]models.MenuItem, error) {
	q := r.DB(ctx).Order("category ASC").Order("name ASC")
	if availableOnly {
		q = q.Where("available = ?", true)
	}
	var items []models.MenuItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
