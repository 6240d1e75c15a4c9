package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/api/validators"
	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

// OrderService is what the customer-facing order routes need.
type OrderService interface {
	Place(ctx context.Context, input orders.PlaceInput) (*models.Order, error)
	Quote(ctx context.Context, items []orders.LineInput) (*orders.Quote, error)
	Get(ctx context.Context, actor auth.Actor, id int64) (*models.Order, error)
	ListForCustomer(ctx context.Context, actor auth.Actor) ([]models.Order, error)
}

type cartLine struct {
	MenuItemID *int64          `json:"menu_item_id,omitempty"`
	Name       string          `json:"name"`
	Size       string          `json:"size"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity" validate:"min=1"`
}

type quoteRequest struct {
	Items []cartLine `json:"items" validate:"dive"`
}

type placeOrderRequest struct {
	CustomerName  string     `json:"customer_name" validate:"required"`
	CustomerPhone string     `json:"customer_phone" validate:"required,phone"`
	Notes         string     `json:"notes"`
	Items         []cartLine `json:"items" validate:"dive"`
}

func toLineInputs(lines []cartLine) []orders.LineInput {
	out := make([]orders.LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.LineInput{
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			Size:       l.Size,
			Price:      l.Price,
			Quantity:   l.Quantity,
		})
	}
	return out
}

func QuoteCart(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Quote(r.Context(), toLineInputs(body.Items))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// PlaceOrder turns the submitted cart into a pending order.
func PlaceOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body placeOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Place(r.Context(), orders.PlaceInput{
			Actor:         middleware.ActorFromContext(r.Context()),
			CustomerName:  validators.SanitizeString(body.CustomerName, 120),
			CustomerPhone: validators.SanitizeString(body.CustomerPhone, 32),
			Notes:         validators.SanitizeString(body.Notes, 2000),
			Items:         toLineInputs(body.Items),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, order)
	}
}

func MyOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListForCustomer(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func MyOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
