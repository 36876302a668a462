package routes

import (
	"log/slog"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Auth   *handlers.AuthHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// RegisterRoutes registers all application routes. Admission must already be
// installed on router: the login limiter keys on the identity it resolves.
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	sessions *auth.SessionMiddleware,
	csrf middleware.CSRFValidator,
	loginLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Get("/health", h.Health.Health)

	// Public routes
	router.With(middleware.RateLimitByIdentity(loginLimit)).Post("/auth/login", h.Auth.Login)

	// Session-protected routes
	router.Group(func(r chi.Router) {
		r.Use(sessions.RequireSession)
		r.Use(middleware.CSRFProtection(csrf, logger))

		r.Get("/auth/csrf", h.Auth.CSRFToken)
		r.Post("/auth/logout", h.Auth.Logout)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/dashboard/stats", h.Admin.GetDashboardStats)
			r.Get("/dashboard/events", h.Admin.GetRecentEvents)

			r.Get("/blocks", h.Admin.ListBlocks)
			r.Post("/blocks", h.Admin.CreateBlock)
			r.Delete("/blocks/{identity}", h.Admin.DeleteBlock)

			r.Get("/identities/{identity}", h.Admin.InspectIdentity)
			r.Get("/totp/qr", h.Admin.TOTPQRCode)
		})
	})
}
