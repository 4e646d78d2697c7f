package mercadopago

import (
	"encoding/json"
	"strings"
)

// Payment statuses reported by GET /v1/payments/{id}.
const (
	StatusApproved   = "approved"
	StatusPending    = "pending"
	StatusInProcess  = "in_process"
	StatusAuthorized = "authorized"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// Webhook actions that concern payments.
const (
	ActionPaymentCreated = "payment.created"
	ActionPaymentUpdated = "payment.updated"
)

// PreferenceItem is one line of a checkout preference.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of POST /checkout/preferences.
type PreferenceRequest struct {
	Items             []PreferenceItem  `json:"items"`
	BackURLs          BackURLs          `json:"back_urls"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the subset of the payment resource the store reads.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	ExternalReference string         `json:"external_reference"`
	TransactionAmount float64        `json:"transaction_amount"`
	Metadata          map[string]any `json:"metadata"`
}

// OrderID returns metadata.order_id, falling back to external_reference.
func (p Payment) OrderID() string {
	if v, ok := p.Metadata["order_id"].(string); ok && v != "" {
		return v
	}
	return p.ExternalReference
}

// Notification is the JSON body MercadoPago posts to the webhook.
type Notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// PaymentID returns data.id, which arrives either as a string or a number.
func (n Notification) PaymentID() string {
	raw := strings.TrimSpace(string(n.Data.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(n.Data.ID, &s); err == nil {
		return s
	}
	return raw
}

// ErrorResponse is the error body of the REST API.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}
