package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/guard"
	"github.com/mahalle/mahalle-api/internal/middleware"
	"github.com/mahalle/mahalle-api/internal/permission"
)

// PermissionsModule is the module name grant administration is itself gated by.
const PermissionsModule = "permissions"

// RegisterAdminRoutes wires staff-only grant administration.
func RegisterAdminRoutes(r fiber.Router, h *permission.Handler, g *guard.Guard) {
	group := r.Group("/admin/permissions", middleware.Authenticate(g))
	group.Get("/:account_id", middleware.RequirePermission(g, PermissionsModule, permission.ActionRead), h.List)
	group.Put("/:account_id/:module", middleware.RequirePermission(g, PermissionsModule, permission.ActionUpdate), h.Put)
	group.Delete("/:account_id/:module", middleware.RequirePermission(g, PermissionsModule, permission.ActionDelete), h.Delete)
}
