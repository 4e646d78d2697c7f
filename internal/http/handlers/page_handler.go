package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "storefront/internal/log"
	"storefront/internal/validate"
)

// PageHandler renders the pages the payment gateway sends the buyer back to.
type PageHandler struct{}

var checkoutPages = map[string]fiber.Map{
	"success": {"Title": "Payment received", "Message": "Thanks! We are confirming your payment. Your order will show as paid in a moment."},
	"pending": {"Title": "Payment pending", "Message": "Your payment is being processed. We will update your order as soon as it clears."},
	"failure": {"Title": "Payment not completed", "Message": "The payment did not go through. Your cart is still saved, you can try again."},
}

// CheckoutResult serves GET /checkout/{success,pending,failure}. The query
// string is informational only; order state changes only through the webhook.
func (h *PageHandler) CheckoutResult(kind string) fiber.Handler {
	page := checkoutPages[kind]
	return func(c *fiber.Ctx) error {
		data := fiber.Map{"Kind": kind, "Title": page["Title"], "Message": page["Message"]}
		if oid, valid := validate.ID(c.Query("external_reference")); valid {
			data["OrderID"] = oid
		}
		if pid, valid := validate.ID(c.Query("payment_id")); valid {
			data["PaymentID"] = pid
		}
		applog.Info(c, "checkout.return", map[string]any{"kind": kind, "order_id": data["OrderID"]})
		return c.Render("checkout_result", data)
	}
}
