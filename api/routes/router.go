package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/roha-backend/api/controllers"
	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/internal/orderview"
	"github.com/angelmondragon/roha-backend/pkg/auth/session"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/roha-backend/pkg/redis"
)

// Dependencies is everything the HTTP surface is built from.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	Checks      []controllers.Check
	Sessions    session.AccessSessionChecker
	Tokens      middleware.TokenVerifier
	RateLimiter middleware.RateLimiterStore
	Idempotency pkgredis.IdempotencyStore
	Metrics     prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Auth          controllers.AuthService
	Profiles      controllers.ProfileService
	Users         controllers.UserAdminService
	Menu          controllers.MenuService
	Orders        controllers.OrderService
	Transitions   controllers.OrderTransitioner
	Console       controllers.ConsoleLoader
	Notifications controllers.NotificationService
	CustomerView  orderview.Deps
	AdminLive     controllers.AdminSubscriber
	AdminLogs     controllers.AdminLogService
	Contact       controllers.ContactService
	Dashboard     controllers.DashboardService
}

func NewRouter(d Dependencies) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Tracing(cfg.Service.Kind),
		middleware.Logging(logg),
		middleware.Instrument(d.HTTPMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.ClientInfo,
	)

	limits := cfg.RateLimit
	loginLimit := middleware.RateLimit("login", d.RateLimiter, logg,
		middleware.ByIP(limits.LoginWindow, limits.LoginIPLimit),
		middleware.ByEmail(limits.LoginWindow, limits.LoginEmailLimit),
	)
	registerLimit := middleware.RateLimit("register", d.RateLimiter, logg,
		middleware.ByIP(limits.RegisterWindow, limits.RegisterIPLimit),
		middleware.ByEmail(limits.RegisterWindow, limits.RegisterEmailLimit),
	)
	orderLimit := middleware.RateLimit("order", d.RateLimiter, logg,
		middleware.ByActor(limits.OrderWindow, limits.OrderActorLimit),
	)
	idem := middleware.Idempotency(d.Idempotency, logg, cfg.Idempotency.TTL, cfg.Idempotency.InFlightTTL)
	orderIdem := middleware.Idempotency(d.Idempotency, logg, cfg.Idempotency.OrderTTL, cfg.Idempotency.InFlightTTL)
	authn := middleware.Auth(d.Tokens, d.Sessions, logg)
	heartbeat := cfg.Realtime.HeartbeatInterval

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Checks...))
	})

	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/menu", controllers.MenuList(d.Menu, logg))
		r.Get("/contact", controllers.ContactGet(d.Contact, logg))
		r.Post("/cart/quote", controllers.QuoteCart(d.Orders, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.With(registerLimit, idem).
				Post("/register", controllers.AuthRegister(d.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
			r.With(authn).Post("/logout", controllers.AuthLogout(d.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.With(orderLimit, orderIdem).Post("/orders", controllers.PlaceOrder(d.Orders, logg))

			r.Route("/me", func(r chi.Router) {
				r.Get("/profile", controllers.MeProfile(d.Profiles, logg))
				r.Patch("/profile", controllers.UpdateMeProfile(d.Profiles, logg))

				r.Get("/orders", controllers.MyOrders(d.Orders, logg))
				r.Get("/orders/{orderId}", controllers.MyOrder(d.Orders, logg))

				r.Get("/notifications", controllers.ListNotifications(d.Notifications, logg))
				r.With(idem).Post("/notifications/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
				r.With(idem).Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))

				r.Get("/live", controllers.CustomerLive(d.CustomerView, heartbeat, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authn)
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderConsole(d.Console, logg))
			r.Get("/live", controllers.AdminOrdersLive(d.AdminLive, heartbeat, logg))
			r.With(idem).Post("/{orderId}/transition", controllers.AdminTransitionOrder(d.Transitions, logg))
		})

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", controllers.AdminMenuList(d.Menu, logg))
			r.With(idem).Post("/", controllers.AdminMenuCreate(d.Menu, logg))
			r.Patch("/{itemId}", controllers.AdminMenuUpdate(d.Menu, logg))
			r.Delete("/{itemId}", controllers.AdminMenuDelete(d.Menu, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.AdminListUsers(d.Users, logg))
			r.Patch("/{userId}/status", controllers.AdminSetUserStatus(d.Users, logg))
			r.Patch("/{userId}/role", controllers.AdminSetUserRole(d.Users, logg))
			r.Patch("/{userId}/profile", controllers.AdminUpdateUserProfile(d.Users, logg))
			r.Post("/{userId}/reset-password", controllers.AdminResetPassword(d.Users, logg))
		})

		r.Get("/logs", controllers.AdminListLogs(d.AdminLogs, logg))
		r.Put("/contact", controllers.AdminContactUpsert(d.Contact, logg))
		r.Get("/dashboard", controllers.AdminDashboard(d.Dashboard, logg))
	})

	return r
}
