package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/api/validators"
	"github.com/angelmondragon/roha-backend/internal/orders"
	"github.com/angelmondragon/roha-backend/internal/orderview"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

type ConsoleLoader interface {
	Load(ctx context.Context, actor auth.Actor, filter string) (*orderview.ConsolePage, error)
}

type OrderTransitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,order_status"`
	Notes  string `json:"notes"`
}

// AdminOrderConsole serves the filtered console with per-status counts.
func AdminOrderConsole(svc ConsoleLoader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.Load(r.Context(), middleware.ActorFromContext(r.Context()), r.URL.Query().Get("status"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminTransitionOrder moves an order along the lifecycle graph.
func AdminTransitionOrder(svc OrderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]string{"status": body.Status}))
			return
		}

		order, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID: id,
			Target:  target,
			Actor:   middleware.ActorFromContext(r.Context()),
			Notes:   validators.SanitizeString(body.Notes, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderview.ConsoleOrder{
			OrderSnapshot: payloads.OrderSnapshotFrom(*order),
			Actions:       orders.NextStatuses(order.Status),
		})
	}
}
