package middleware

import (
	"net/http"

	"github.com/angelmondragon/roha-backend/api/responses"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

// RequireCapability rejects actors for which allowed returns false. Anonymous
// actors get UNAUTHORIZED, authenticated ones FORBIDDEN.
func RequireCapability(allowed func(auth.Actor) bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if !actor.IsAuthenticated() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !allowed(actor) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireCapability(auth.Actor.IsAdmin, logg)
}
