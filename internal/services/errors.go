package services

import "errors"

// Errors returned by the services. Handlers map them to HTTP status codes.
var (
	ErrNotFound          = errors.New("NOT_FOUND")
	ErrForbidden         = errors.New("FORBIDDEN")
	ErrInvalidInput      = errors.New("INVALID_INPUT")
	ErrBadCreds          = errors.New("invalid email or password")
	ErrInvalidToken      = errors.New("INVALID_TOKEN")
	ErrEmailTaken        = errors.New("EMAIL_TAKEN")
	ErrOutOfStock        = errors.New("OUT_OF_STOCK")
	ErrInsufficientStock = errors.New("INSUFFICIENT_STOCK")
	ErrEmptyOrder        = errors.New("EMPTY_ORDER")
	ErrPaymentGateway    = errors.New("PAYMENT_GATEWAY_ERROR")
)
