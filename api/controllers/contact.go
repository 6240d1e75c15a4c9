package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/api/validators"
	"github.com/angelmondragon/roha-backend/internal/contact"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type ContactService interface {
	Get(ctx context.Context) (*models.ContactInfo, error)
	Upsert(ctx context.Context, actor auth.Actor, in contact.Input) (*models.ContactInfo, error)
}

func ContactGet(svc ContactService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

func AdminContactUpsert(svc ContactService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body contact.Input
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := svc.Upsert(r.Context(), middleware.ActorFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}
