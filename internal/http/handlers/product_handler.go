package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type ProductHandler struct {
	Catalog *services.CatalogService
}

// GET /api/products?q=&page=&limit=
func (h *ProductHandler) List(c *fiber.Ctx) error {
	q, valid := validate.Q(c.Query("q"))
	if !valid {
		return badRequest(c, "q", "Search may only contain letters, numbers, spaces and - _ ' .")
	}
	page := validate.Int(c.Query("page"), 1)
	limit := validate.Int(c.Query("limit"), 0)

	res, err := h.Catalog.ListProducts(q, page, limit)
	if err != nil {
		return failFrom(c, "catalog.list.fail", err)
	}
	return okPage(c, "OK", res.Items, res.Page, res.PageSize, res.Total)
}

// GET /api/products/:id
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "This item is no longer available")
	}
	p, err := h.Catalog.GetProduct(id)
	if err != nil {
		return failFrom(c, "catalog.detail.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", p)
}
