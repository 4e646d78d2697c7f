package repos

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

// CartLine is a cart row together with its owner, used for ownership checks.
type CartLine struct {
	ID        string `db:"id"`
	CartID    string `db:"cart_id"`
	UserID    string `db:"user_id"`
	ProductID string `db:"product_id"`
	Quantity  int    `db:"quantity"`
	Stock     int    `db:"stock"`
}

const cartItemSelect = `
	SELECT ci.id, ci.product_id, ci.quantity, p.name, p.price, p.stock, p.image_url
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

// EnsureCart returns the cart id of userID, creating the cart if needed.
func (r *CartRepo) EnsureCart(userID string) (string, error) {
	if _, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO carts(id, user_id) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`), uuid.NewString(), userID); err != nil {
		return "", err
	}
	var id string
	err := r.db.Get(&id, r.db.Rebind(`SELECT id FROM carts WHERE user_id = ?`), userID)
	return id, err
}

// FindCart reports whether userID has a cart row at all.
func (r *CartRepo) FindCart(userID string) (string, bool, error) {
	var ids []string
	if err := r.db.Select(&ids, r.db.Rebind(`SELECT id FROM carts WHERE user_id = ?`), userID); err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

func (r *CartRepo) Items(cartID string) ([]domain.CartItem, error) {
	out := []domain.CartItem{}
	err := r.db.Select(&out, r.db.Rebind(cartItemSelect+`
		WHERE ci.cart_id = ?
		ORDER BY ci.created_at, ci.id`), cartID)
	return out, err
}

func (r *CartRepo) FindItem(cartID, productID string) (domain.CartItem, error) {
	var it domain.CartItem
	err := r.db.Get(&it, r.db.Rebind(cartItemSelect+`
		WHERE ci.cart_id = ? AND ci.product_id = ?`), cartID, productID)
	return it, err
}

// LineByID loads a cart line with the owning user and current product stock.
func (r *CartRepo) LineByID(itemID string) (CartLine, error) {
	var l CartLine
	err := r.db.Get(&l, r.db.Rebind(`
		SELECT ci.id, ci.cart_id, c.user_id, ci.product_id, ci.quantity, p.stock
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE ci.id = ?`), itemID)
	return l, err
}

// AddOrIncrement inserts a line or adds qty to the existing line for the product.
func (r *CartRepo) AddOrIncrement(cartID, productID string, qty int) error {
	if _, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO cart_items(id, cart_id, product_id, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + excluded.quantity, updated_at = CURRENT_TIMESTAMP
	`), uuid.NewString(), cartID, productID, qty); err != nil {
		return err
	}
	return r.touch(cartID)
}

func (r *CartRepo) SetQuantity(itemID string, qty int) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE cart_items SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), qty, itemID)
	return affectedOrNoRows(res, err)
}

func (r *CartRepo) RemoveItem(itemID string) error {
	res, err := r.db.Exec(r.db.Rebind(`DELETE FROM cart_items WHERE id = ?`), itemID)
	return affectedOrNoRows(res, err)
}

// Replace swaps the whole content of a cart for lines in one transaction.
// Line ids are kept when supplied so clients can keep addressing them.
func (r *CartRepo) Replace(cartID string, lines []domain.CartItem) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(tx.Rebind(`DELETE FROM cart_items WHERE cart_id = ?`), cartID); err != nil {
		return err
	}
	for _, l := range lines {
		id := l.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO cart_items(id, cart_id, product_id, quantity) VALUES (?, ?, ?, ?)
		`), id, cartID, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(tx.Rebind(`UPDATE carts SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`), cartID); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearUser empties the cart of userID, if any.
func (r *CartRepo) ClearUser(userID string) error {
	_, err := r.db.Exec(r.db.Rebind(`
		DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)
	`), userID)
	return err
}

func (r *CartRepo) touch(cartID string) error {
	_, err := r.db.Exec(r.db.Rebind(`UPDATE carts SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`), cartID)
	return err
}
