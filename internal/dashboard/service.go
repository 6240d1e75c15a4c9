package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

type orderStats interface {
	Stats(ctx context.Context, actor auth.Actor) (*orders.Stats, error)
}

type customerCounter interface {
	CountCustomers(ctx context.Context) (int64, error)
}

// Summary is the admin dashboard headline.
type Summary struct {
	TotalOrders   int64           `json:"total_orders"`
	PendingOrders int64           `json:"pending_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	Customers     int64           `json:"customers"`
}

type Service struct {
	orders    orderStats
	customers customerCounter
}

func NewService(orders orderStats, customers customerCounter) (*Service, error) {
	if orders == nil || customers == nil {
		return nil, fmt.Errorf("dashboard dependencies required")
	}
	return &Service{orders: orders, customers: customers}, nil
}

func (s *Service) Summary(ctx context.Context, actor auth.Actor) (*Summary, error) {
	stats, err := s.orders.Stats(ctx, actor)
	if err != nil {
		return nil, err
	}
	customers, err := s.customers.CountCustomers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customers")
	}
	return &Summary{
		TotalOrders:   stats.TotalOrders,
		PendingOrders: stats.PendingOrders,
		TotalRevenue:  stats.Revenue,
		Customers:     customers,
	}, nil
}
