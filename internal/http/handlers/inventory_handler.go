package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

// GET /api/availability?productId=
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	productID, valid := validate.ID(c.Query("productId"))
	if !valid {
		return badRequest(c, "productId", "missing productId")
	}
	avail, err := h.Inv.CheckAvailability(productID)
	if err != nil {
		return failFrom(c, "inventory.check.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", avail)
}
