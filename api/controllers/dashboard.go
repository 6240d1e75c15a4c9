package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/internal/dashboard"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type DashboardService interface {
	Summary(ctx context.Context, actor auth.Actor) (*dashboard.Summary, error)
}

func AdminDashboard(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summary(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
