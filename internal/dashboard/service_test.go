package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

type statsFunc func(context.Context, auth.Actor) (*orders.Stats, error)

func (f statsFunc) Stats(ctx context.Context, actor auth.Actor) (*orders.Stats, error) {
	return f(ctx, actor)
}

type countFunc func(context.Context) (int64, error)

func (f countFunc) CountCustomers(ctx context.Context) (int64, error) { return f(ctx) }

func TestSummaryCombinesSources(t *testing.T) {
	svc, err := NewService(
		statsFunc(func(context.Context, auth.Actor) (*orders.Stats, error) {
			return &orders.Stats{TotalOrders: 12, PendingOrders: 3, Revenue: decimal.RequireFromString("4560.50")}, nil
		}),
		countFunc(func(context.Context) (int64, error) { return 9, nil }),
	)
	require.NoError(t, err)

	summary, err := svc.Summary(context.Background(), auth.NewActor(uuid.New(), enums.ProfileRoleAdmin))
	require.NoError(t, err)
	require.Equal(t, int64(12), summary.TotalOrders)
	require.Equal(t, int64(3), summary.PendingOrders)
	require.Equal(t, "4560.5", summary.TotalRevenue.String())
	require.Equal(t, int64(9), summary.Customers)
}

func TestSummaryPropagatesErrors(t *testing.T) {
	forbidden := pkgerrors.New(pkgerrors.CodeForbidden, "dashboard requires admin")
	svc, err := NewService(
		statsFunc(func(context.Context, auth.Actor) (*orders.Stats, error) { return nil, forbidden }),
		countFunc(func(context.Context) (int64, error) { return 0, errors.New("unreachable") }),
	)
	require.NoError(t, err)

	_, err = svc.Summary(context.Background(), auth.Actor{})
	require.ErrorIs(t, err, forbidden)
}
