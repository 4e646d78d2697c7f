package repos

import (
	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderCols = `id, user_id, total, status, payment_id, preference_id, created_at, updated_at`

// CreateWithItems writes the order header and its item snapshots in one
// transaction. o.ID and every item ID must already be set.
func (r *OrderRepo) CreateWithItems(o domain.Order) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	status := o.Status
	if status == "" {
		status = domain.OrderPending
	}
	if _, err := tx.Exec(tx.Rebind(`
		INSERT INTO orders(id, user_id, total, status) VALUES (?, ?, ?, ?)
	`), o.ID, o.UserID, o.Total, status); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO order_items(id, order_id, product_id, name, price, quantity)
			VALUES (?, ?, ?, ?, ?, ?)
		`), it.ID, o.ID, it.ProductID, it.Name, it.Price, it.Quantity); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get loads an order with its items; sql.ErrNoRows when missing.
func (r *OrderRepo) Get(id string) (domain.Order, error) {
	var o domain.Order
	if err := r.db.Get(&o, r.db.Rebind(`SELECT `+orderCols+` FROM orders WHERE id = ?`), id); err != nil {
		return domain.Order{}, err
	}
	items := []domain.OrderItem{}
	if err := r.db.Select(&items, r.db.Rebind(`
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items WHERE order_id = ? ORDER BY name, id
	`), id); err != nil {
		return domain.Order{}, err
	}
	o.Items = items
	return o, nil
}

// ListByUser returns the user's orders, newest first, with items attached.
func (r *OrderRepo) ListByUser(userID string) ([]domain.Order, error) {
	out := []domain.Order{}
	if err := r.db.Select(&out, r.db.Rebind(`
		SELECT `+orderCols+` FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id
	`), userID); err != nil {
		return nil, err
	}
	return out, r.attachItems(out)
}

// ListLatest returns the most recent orders of every user (admin view).
func (r *OrderRepo) ListLatest(limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []domain.Order{}
	err := r.db.Select(&out, r.db.Rebind(`
		SELECT `+orderCols+` FROM orders ORDER BY created_at DESC, id LIMIT ?
	`), limit)
	return out, err
}

func (r *OrderRepo) attachItems(orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}
	query, args, err := sqlx.In(`
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items WHERE order_id IN (?) ORDER BY name, id`, ids)
	if err != nil {
		return err
	}
	var items []domain.OrderItem
	if err := r.db.Select(&items, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, it := range items {
		i := byID[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

// UpdateStatus sets the status and, when paymentID is non-nil, the payment id.
func (r *OrderRepo) UpdateStatus(id, status string, paymentID *string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE orders
		SET status = ?, payment_id = COALESCE(?, payment_id), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`), status, paymentID, id)
	return affectedOrNoRows(res, err)
}

// UpdateStatusUnlessPaid is UpdateStatus that leaves paid orders alone. It
// reports whether a row changed.
func (r *OrderRepo) UpdateStatusUnlessPaid(id, status string, paymentID *string) (bool, error) {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE orders
		SET status = ?, payment_id = COALESCE(?, payment_id), updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status <> ?
	`), status, paymentID, id, domain.OrderPaid)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPreference records the gateway preference and moves the order to
// pending_payment. Paid orders are left alone; it reports whether a row
// changed.
func (r *OrderRepo) SetPreference(id, preferenceID string) (bool, error) {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE orders
		SET preference_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status <> ?
	`), preferenceID, domain.OrderPendingPayment, id, domain.OrderPaid)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
