package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/roha-backend/pkg/metrics"
)

// Instrument counts every request against the route it matched.
func Instrument(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			m.ObserveRequest(r.Method, routePattern(r, "unmatched"), statusOf(ww), time.Since(start), isStream(ww))
		})
	}
}

// routePattern is the chi pattern the request matched, or fallback before
// routing or on a 404. Only complete once the handler has returned.
func routePattern(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func isStream(ww chimw.WrapResponseWriter) bool {
	return strings.HasPrefix(ww.Header().Get("Content-Type"), "text/event-stream")
}
