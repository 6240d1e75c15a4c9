package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/repo"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Repository is the order store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, order *models.Order) (*models.Order, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
	UpdateIfVersion(ctx context.Context, id int64, version int, fields map[string]any) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Order, error)
	ListAll(ctx context.Context, status *enums.OrderStatus) ([]models.Order, error)
	CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Stats aggregates the dashboard order figures.
type Stats struct {
	TotalOrders   int64
	PendingOrders int64
	Revenue       decimal.Decimal
}

type repository struct {
	repo.Base
}

// NewRepository builds an order store bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// Insert stores a new order as pending at version 1.
func (r *repository) Insert(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.ID = 0
	order.Status = enums.OrderStatusPending
	order.Version = 1
	order.ProcessedBy = nil
	order.ProcessedAt = nil
	if err := r.DB(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) Update(ctx context.Context, id int64, fields map[string]any) error {
	res := r.DB(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateIfVersion applies fields only while the row still carries version. It
// reports false when another writer got there first.
func (r *repository) UpdateIfVersion(ctx context.Context, id int64, version int, fields map[string]any) (bool, error) {
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Where("customer_id = ?", customerID).
		Scopes(repo.NewestFirst("")).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListAll(ctx context.Context, status *enums.OrderStatus) ([]models.Order, error) {
	q := r.DB(ctx).Model(&models.Order{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var orders []models.Order
	if err := q.Scopes(repo.NewestFirst("")).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Count(&count).Error
	return count, err
}

func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	var row struct {
		Total   int64
		Pending int64
		Revenue decimal.NullDecimal
	}
	err := r.DB(ctx).Model(&models.Order{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending, "+
			"SUM(total_amount) AS revenue", enums.OrderStatusPending).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	stats := &Stats{TotalOrders: row.Total, PendingOrders: row.Pending, Revenue: decimal.Zero}
	if row.Revenue.Valid {
		stats.Revenue = row.Revenue.Decimal
	}
	return stats, nil
}
