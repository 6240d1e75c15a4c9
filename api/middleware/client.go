package middleware

import (
	"net/http"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
)

// ClientInfo records the caller's IP and user agent so audit entries written
// while serving the request carry them.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := adminlogs.WithClient(r.Context(), clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
