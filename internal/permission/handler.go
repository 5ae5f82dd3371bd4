package permission

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/apperr"
)

// Handler exposes grant administration endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a permission HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns the grants of the account in the path.
func (h *Handler) List(c *fiber.Ctx) error {
	grants, err := h.service.List(c.UserContext(), c.Params("account_id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"grants": grants})
}

// Put upserts one grant.
func (h *Handler) Put(c *fiber.Ctx) error {
	var flags Flags
	if err := c.BodyParser(&flags); err != nil {
		return apperr.Invalid("malformed request body")
	}
	g, err := h.service.Put(c.UserContext(), c.Params("account_id"), c.Params("module"), flags)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(g)
}

// Delete removes one grant.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Remove(c.UserContext(), c.Params("account_id"), c.Params("module")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
