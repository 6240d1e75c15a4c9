package orderview

import (
	"context"
	"strings"

	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

// FilterAll selects every order in the console.
const FilterAll = "all"

type OrderLister interface {
	ListAll(ctx context.Context, actor auth.Actor, status *enums.OrderStatus) ([]models.Order, error)
}

// ConsoleOrder is an order row with the transitions an admin may apply.
type ConsoleOrder struct {
	payloads.OrderSnapshot
	Actions []enums.OrderStatus `json:"actions"`
}

// ConsolePage is one load of the admin order console.
type ConsolePage struct {
	Filter string         `json:"filter"`
	Counts map[string]int `json:"counts"`
	Orders []ConsoleOrder `json:"orders"`
}

type Console struct {
	orders OrderLister
}

func NewConsole(orders OrderLister) *Console {
	return &Console{orders: orders}
}

// Load fetches every order once, counts them per status and filters in memory.
func (c *Console) Load(ctx context.Context, actor auth.Actor, filter string) (*ConsolePage, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = FilterAll
	}
	var status enums.OrderStatus
	if filter != FilterAll {
		parsed, err := enums.ParseOrderStatus(filter)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown status filter")
		}
		status = parsed
	}

	rows, err := c.orders.ListAll(ctx, actor, nil)
	if err != nil {
		return nil, err
	}

	page := &ConsolePage{
		Filter: filter,
		Counts: make(map[string]int, len(enums.ConsoleOrderStatuses)+1),
		Orders: make([]ConsoleOrder, 0, len(rows)),
	}
	page.Counts[FilterAll] = len(rows)
	for _, s := range enums.ConsoleOrderStatuses {
		page.Counts[string(s)] = 0
	}
	for _, row := range rows {
		page.Counts[string(row.Status)]++
		if filter != FilterAll && row.Status != status {
			continue
		}
		page.Orders = append(page.Orders, ConsoleOrder{
			OrderSnapshot: payloads.OrderSnapshotFrom(row),
			Actions:       orders.NextStatuses(row.Status),
		})
	}
	return page, nil
}
