package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/api/validators"
	"github.com/angelmondragon/roha-backend/internal/users"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type UserAdminService interface {
	List(ctx context.Context, actor auth.Actor) ([]users.ProfileDTO, error)
	SetStatus(ctx context.Context, actor auth.Actor, userID uuid.UUID, status enums.ProfileStatus) (*users.ProfileDTO, error)
	SetRole(ctx context.Context, actor auth.Actor, userID uuid.UUID, role enums.ProfileRole) (*users.ProfileDTO, error)
	UpdateProfile(ctx context.Context, actor auth.Actor, userID uuid.UUID, update users.ProfileUpdate) (*users.ProfileDTO, error)
	ResetPassword(ctx context.Context, actor auth.Actor, userID uuid.UUID) (string, error)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func AdminListUsers(svc UserAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func AdminSetUserStatus(svc UserAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseProfileStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		profile, err := svc.SetStatus(r.Context(), middleware.ActorFromContext(r.Context()), userID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func AdminSetUserRole(svc UserAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body roleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseProfileRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}
		profile, err := svc.SetRole(r.Context(), middleware.ActorFromContext(r.Context()), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func AdminUpdateUserProfile(svc UserAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body users.ProfileUpdate
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.UpdateProfile(r.Context(), middleware.ActorFromContext(r.Context()), userID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// AdminResetPassword issues a temporary password; it is shown once.
func AdminResetPassword(svc UserAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		temp, err := svc.ResetPassword(r.Context(), middleware.ActorFromContext(r.Context()), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, map[string]string{"temporary_password": temp})
	}
}
