package repos

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrStockExhausted is returned by Decrement when the product has fewer units
// than requested.
var ErrStockExhausted = errors.New("stock exhausted")

type InventoryRepo struct{ db *sqlx.DB }

func NewInventoryRepo(db *sqlx.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// Stock returns the current stock of a product; sql.ErrNoRows if it does not exist.
func (r *InventoryRepo) Stock(productID string) (int, error) {
	var n int
	err := r.db.Get(&n, r.db.Rebind(`SELECT stock FROM products WHERE id = ?`), productID)
	return n, err
}

// Decrement subtracts by units in a single guarded UPDATE, so concurrent
// callers can never push stock below zero.
func (r *InventoryRepo) Decrement(productID string, by int) error {
	if by <= 0 {
		return fmt.Errorf("decrement %s: invalid quantity %d", productID, by)
	}
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE products
		SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock >= ?
	`), by, productID, by)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("decrement %s by %d: %w", productID, by, ErrStockExhausted)
	}
	return nil
}

func (r *InventoryRepo) SetStock(productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("set stock %s: negative quantity %d", productID, qty)
	}
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE products SET stock = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), qty, productID)
	return affectedOrNoRows(res, err)
}
