package domain

import "github.com/shopspring/decimal"

// Order statuses. The column is free text; these are the values the
// application writes.
const (
	OrderPending        = "pending"
	OrderPendingPayment = "pending_payment"
	OrderPaid           = "paid"
	OrderFailed         = "failed"
)

type Order struct {
	ID           string          `db:"id" json:"id"`
	UserID       *string         `db:"user_id" json:"user_id"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Status       string          `db:"status" json:"status"`
	PaymentID    *string         `db:"payment_id" json:"payment_id,omitempty"`
	PreferenceID *string         `db:"preference_id" json:"preference_id,omitempty"`
	CreatedAt    string          `db:"created_at" json:"created_at"`
	UpdatedAt    string          `db:"updated_at" json:"updated_at"`
	Items        []OrderItem     `db:"-" json:"items,omitempty"`
}

// OwnedBy reports whether userID owns the order. Orphaned orders (owner
// deleted) belong to nobody.
func (o Order) OwnedBy(userID string) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderItem is the name/price/quantity snapshot taken when the order was placed.
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// OrderLine is what a client submits when creating an order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
