package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/api/validators"
	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type AdminLogService interface {
	List(ctx context.Context, input adminlogs.ListInput) ([]adminlogs.LogView, error)
}

// AdminListLogs supports ?action=, ?period=today|week|month and ?limit=.
func AdminListLogs(svc AdminLogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", adminlogs.DefaultLimit, 1, adminlogs.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := validators.ParseQueryChoice(r, "period", adminlogs.Periods...)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), adminlogs.ListInput{
			Actor:  middleware.ActorFromContext(r.Context()),
			Action: r.URL.Query().Get("action"),
			Period: period,
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
