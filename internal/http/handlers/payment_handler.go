package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
	"storefront/pkg/mercadopago"
)

type PaymentHandler struct {
	Payments *services.PaymentService
	// WebhookSecret enables x-signature verification when set.
	WebhookSecret string
}

type preferenceRequest struct {
	OrderID string `json:"order_id" form:"order_id"`
}

// POST /api/payments/preference
func (h *PaymentHandler) Preference(c *fiber.Ctx) error {
	var in preferenceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	oid, valid := validate.ID(in.OrderID)
	if !valid {
		return badRequest(c, "order_id", "missing order_id")
	}
	res, err := h.Payments.CreatePreference(c.UserContext(), CurrentUser(c), oid)
	if errors.Is(err, services.ErrForbidden) {
		applog.Security(c, "access.denied.order", map[string]any{"order_id": oid})
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Order not found")
	}
	if err != nil {
		return failFrom(c, "payment.preference.fail", err)
	}
	applog.Audit(c, "payment.preference", map[string]any{"order_id": oid, "preference_id": res.PreferenceID})
	return ok(c, fiber.StatusCreated, "Preference created", res)
}

// POST /api/payments/webhook. The payload only names the payment; its status
// is always re-read from the gateway.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var n mercadopago.Notification
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&n); err != nil {
			applog.Security(c, "payment.webhook.malformed", nil)
			return Fail(c, fiber.StatusBadRequest, "INVALID_INPUT", "Malformed notification")
		}
	}
	paymentID := n.PaymentID()
	if paymentID == "" {
		paymentID = c.Query("data.id")
	}

	if h.WebhookSecret != "" {
		sig := c.Get("x-signature")
		if !mercadopago.VerifySignature(sig, paymentID, c.Get("x-request-id"), h.WebhookSecret) {
			applog.Security(c, "payment.webhook.signature.fail", map[string]any{"payment_id": paymentID})
			return Fail(c, fiber.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
		}
	}

	out, err := h.Payments.HandleNotification(c.UserContext(), n.Action, paymentID)
	if err != nil {
		applog.Error(c, "payment.webhook.fail", err, map[string]any{"action": n.Action, "payment_id": paymentID})
		return failFrom(c, "payment.webhook.fail", err)
	}
	fields := map[string]any{"action": n.Action, "payment_id": paymentID, "outcome": string(out)}
	if out == services.OutcomeConfirmed {
		applog.Audit(c, "payment.webhook", fields)
	} else {
		applog.Info(c, "payment.webhook", fields)
	}
	return ok(c, fiber.StatusOK, string(out), fiber.Map{"outcome": out})
}
