package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type CartHandler struct {
	Cart *services.CartService
}

type cartAddRequest struct {
	ProductID string `json:"product_id" form:"product_id"`
	Quantity  int    `json:"quantity" form:"quantity"`
}

type cartUpdateRequest struct {
	ItemID   string `json:"item_id" form:"item_id"`
	Quantity int    `json:"quantity" form:"quantity"`
}

type cartReplaceRequest struct {
	Items []domain.CartItem `json:"items"`
}

func (h *CartHandler) reject(c *fiber.Ctx, action string, err error, fields map[string]any) error {
	applog.Info(c, action, fields)
	return failFrom(c, action, err)
}

// GET /api/cart
func (h *CartHandler) View(c *fiber.Ctx) error {
	cv, err := h.Cart.View(CurrentUser(c).ID)
	if err != nil {
		return failFrom(c, "cart.view.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", cv)
}

// PUT /api/cart replaces the whole remote cart with the client copy.
func (h *CartHandler) Replace(c *fiber.Ctx) error {
	var in cartReplaceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if len(in.Items) > 100 {
		return badRequest(c, "items", "Too many cart lines")
	}
	for _, it := range in.Items {
		if _, valid := validate.ID(it.ProductID); !valid || !validate.Qty(it.Quantity) {
			return badRequest(c, "items", "Every line needs a product and a quantity between 1 and 99")
		}
	}
	u := CurrentUser(c)
	cv, err := h.Cart.Replace(u.ID, in.Items)
	if err != nil {
		return h.reject(c, "cart.sync.reject", err, map[string]any{"lines": len(in.Items)})
	}
	return ok(c, fiber.StatusOK, "Cart saved", cv)
}

// POST /api/cart/add
func (h *CartHandler) Add(c *fiber.Ctx) error {
	var in cartAddRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	productID, valid := validate.ID(in.ProductID)
	if !valid {
		return badRequest(c, "product_id", "missing product_id")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if !validate.Qty(in.Quantity) {
		return badRequest(c, "quantity", "Quantity must be between 1 and 99")
	}
	cv, err := h.Cart.Add(CurrentUser(c).ID, productID, in.Quantity)
	if err != nil {
		return h.reject(c, "cart.add.reject", err, map[string]any{"product_id": productID, "qty": in.Quantity})
	}
	return ok(c, fiber.StatusOK, "Added to cart", cv)
}

// PUT /api/cart/update. A quantity of zero or less removes the line.
func (h *CartHandler) Update(c *fiber.Ctx) error {
	var in cartUpdateRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	itemID, valid := validate.ID(in.ItemID)
	if !valid {
		return badRequest(c, "item_id", "missing item_id")
	}
	if in.Quantity > validate.MaxCartQty {
		return badRequest(c, "quantity", "Quantity must be at most 99")
	}
	u := CurrentUser(c)
	cv, err := h.Cart.Update(u.ID, itemID, in.Quantity)
	if err != nil {
		if err == services.ErrForbidden {
			applog.Security(c, "access.denied.cart", map[string]any{"item_id": itemID})
		}
		return h.reject(c, "cart.update.reject", err, map[string]any{"item_id": itemID, "qty": in.Quantity})
	}
	return ok(c, fiber.StatusOK, "Cart updated", cv)
}

// DELETE /api/cart/remove?item_id=
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	raw := c.Query("item_id")
	if raw == "" {
		var in cartUpdateRequest
		if err := c.BodyParser(&in); err == nil {
			raw = in.ItemID
		}
	}
	itemID, valid := validate.ID(raw)
	if !valid {
		return badRequest(c, "item_id", "missing item_id")
	}
	u := CurrentUser(c)
	cv, err := h.Cart.Remove(u.ID, itemID)
	if err != nil {
		if err == services.ErrForbidden {
			applog.Security(c, "access.denied.cart", map[string]any{"item_id": itemID})
		}
		return h.reject(c, "cart.remove.reject", err, map[string]any{"item_id": itemID})
	}
	return ok(c, fiber.StatusOK, "Removed from cart", cv)
}
