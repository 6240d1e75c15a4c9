package orders

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// LineInput is one cart line submitted for quoting or placement.
type LineInput struct {
	MenuItemID *int64
	Name       string
	Size       string
	Price      decimal.Decimal
	Quantity   int
}

// PlaceInput carries a customer's checkout.
type PlaceInput struct {
	Actor         auth.Actor
	CustomerName  string
	CustomerPhone string
	Notes         string
	Items         []LineInput
}

// TransitionInput asks the engine to move an order to Target.
type TransitionInput struct {
	OrderID int64
	Target  enums.OrderStatus
	Actor   auth.Actor
	Notes   string
}

// QuoteLine is a priced cart line.
type QuoteLine struct {
	MenuItemID *int64          `json:"menu_item_id,omitempty"`
	Name       string          `json:"name"`
	Size       string          `json:"size"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Quote is the cart summary shown before checkout.
type Quote struct {
	Lines        []QuoteLine     `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	FreeDelivery bool            `json:"free_delivery"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

// TransitionDetails is attached to INVALID_TRANSITION errors.
type TransitionDetails struct {
	From    enums.OrderStatus   `json:"from"`
	To      enums.OrderStatus   `json:"to"`
	Allowed []enums.OrderStatus `json:"allowed"`
}
