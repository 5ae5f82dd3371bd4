package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/auth"
	"github.com/mahalle/mahalle-api/internal/guard"
	"github.com/mahalle/mahalle-api/internal/middleware"
)

// RegisterAuthRoutes wires the sign-in endpoints. rateLimiter guards the code endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, g *guard.Guard, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/request-otp", rateLimiter, h.RequestOTP)
	group.Post("/verify-otp", rateLimiter, h.VerifyOTP)
	group.Post("/register", h.Register)
	group.Post("/refresh", h.Refresh)

	authn := middleware.Authenticate(g)
	group.Post("/logout", authn, h.Logout)
	group.Get("/me", authn, h.Me)
}
