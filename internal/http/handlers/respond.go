package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	applog "storefront/internal/log"
	"storefront/internal/services"
)

// Response is the JSON envelope every API endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	RequestID  string      `json:"requestId"`
	Timestamp  string      `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

func meta(c *fiber.Ctx) Meta {
	rid, _ := c.Locals("requestid").(string)
	if rid == "" {
		rid = uuid.NewString()[:8]
	}
	return Meta{RequestID: rid, Timestamp: time.Now().Format(time.RFC3339)}
}

func ok(c *fiber.Ctx, code int, message string, data any) error {
	return c.Status(code).JSON(Response{Success: true, Code: code, Message: message, Data: data, Meta: meta(c)})
}

func okPage(c *fiber.Ctx, message string, data any, page, limit, total int) error {
	m := meta(c)
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	m.Pagination = &Pagination{Page: page, Limit: limit, TotalItems: total, TotalPages: pages}
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Code: fiber.StatusOK, Message: message, Data: data, Meta: m})
}

// Fail writes an error envelope.
func Fail(c *fiber.Ctx, code int, errCode, message string) error {
	return c.Status(code).JSON(Response{
		Success: false,
		Code:    code,
		Message: message,
		Error:   &ErrorInfo{Code: errCode, Message: message},
		Meta:    meta(c),
	})
}

// failFrom maps a service error to a status code. Unknown errors are logged
// under action and answered with a generic 500.
func failFrom(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, services.ErrForbidden):
		return Fail(c, fiber.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrEmptyOrder):
		return Fail(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, services.ErrBadCreds):
		return Fail(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, services.ErrInvalidToken):
		return Fail(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
	case errors.Is(err, services.ErrEmailTaken):
		return Fail(c, fiber.StatusConflict, "EMAIL_TAKEN", "Email is already registered")
	case errors.Is(err, services.ErrOutOfStock):
		return Fail(c, fiber.StatusConflict, "OUT_OF_STOCK", "This product is out of stock")
	case errors.Is(err, services.ErrInsufficientStock):
		return Fail(c, fiber.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, services.ErrPaymentGateway):
		applog.Error(c, action, err, nil)
		return Fail(c, fiber.StatusBadGateway, "PAYMENT_GATEWAY_ERROR", "Payment provider unavailable")
	}
	applog.Error(c, action, err, nil)
	return Fail(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again.")
}

func badRequest(c *fiber.Ctx, field, message string) error {
	applog.Security(c, "validation.fail", map[string]any{"field": field})
	return Fail(c, fiber.StatusBadRequest, "INVALID_INPUT", message)
}
