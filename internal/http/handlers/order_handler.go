package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

const maxOrderLines = 50

type OrderHandler struct {
	Order *services.OrderService
}

type createOrderRequest struct {
	Total *decimal.Decimal   `json:"total"`
	Items []domain.OrderLine `json:"items"`
}

// POST /api/orders. The client total is only compared against the server
// total for the audit trail; the stored total is always recomputed.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var in createOrderRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if len(in.Items) == 0 {
		return badRequest(c, "items", "Your cart is empty")
	}
	if len(in.Items) > maxOrderLines {
		return badRequest(c, "items", "Too many order lines")
	}
	for _, l := range in.Items {
		if _, valid := validate.ID(l.ProductID); !valid || !validate.Qty(l.Quantity) {
			return badRequest(c, "items", "Every line needs a product and a quantity between 1 and 99")
		}
	}

	u := CurrentUser(c)
	o, err := h.Order.Create(u.ID, in.Items)
	if err != nil {
		applog.Security(c, "order.create.fail", map[string]any{"error": err.Error()})
		return failFrom(c, "order.create.fail", err)
	}
	fields := map[string]any{"order_id": o.ID, "server_total": o.Total.String()}
	if in.Total != nil {
		fields["client_total"] = in.Total.String()
		fields["mismatch"] = !in.Total.Equal(o.Total)
	}
	applog.Audit(c, "order.create", fields)
	return ok(c, fiber.StatusCreated, "Order created", o)
}

// GET /api/orders
func (h *OrderHandler) List(c *fiber.Ctx) error {
	orders, err := h.Order.ListForUser(CurrentUser(c).ID)
	if err != nil {
		return failFrom(c, "orders.history.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", orders)
}

// GET /api/orders/:id. Orders of other users answer 404.
func (h *OrderHandler) View(c *fiber.Ctx) error {
	oid, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Order not found")
	}
	o, err := h.Order.Get(CurrentUser(c), oid)
	if errors.Is(err, services.ErrForbidden) {
		applog.Security(c, "access.denied.order", map[string]any{"order_id": oid})
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Order not found")
	}
	if err != nil {
		return failFrom(c, "orders.view.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", o)
}
