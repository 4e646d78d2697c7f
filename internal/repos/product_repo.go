package repos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `id, name, description, price, stock, image_url, created_at, updated_at`

func searchClause(q string) (string, []any) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return "", nil
	}
	like := "%" + q + "%"
	return ` WHERE LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?`, []any{like, like}
}

// List returns products matching q (name or description, case-insensitive),
// newest first.
func (r *ProductRepo) List(q string, limit, offset int) ([]domain.Product, error) {
	where, args := searchClause(q)
	args = append(args, limit, offset)
	out := []domain.Product{}
	err := r.db.Select(&out, r.db.Rebind(`
		SELECT `+productCols+`
		FROM products`+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`), args...)
	return out, err
}

func (r *ProductRepo) Count(q string) (int, error) {
	where, args := searchClause(q)
	var n int
	err := r.db.Get(&n, r.db.Rebind(`SELECT COUNT(*) FROM products`+where), args...)
	return n, err
}

func (r *ProductRepo) Get(id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.Get(&p, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE id = ?`), id)
	return p, err
}

func (r *ProductRepo) Create(p domain.Product) error {
	_, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO products(id, name, description, price, stock, image_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`), p.ID, p.Name, p.Description, p.Price, p.Stock, p.ImageURL)
	return err
}

// Update overwrites every editable column. sql.ErrNoRows means no such product.
func (r *ProductRepo) Update(p domain.Product) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE products
		SET name = ?, description = ?, price = ?, stock = ?, image_url = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`), p.Name, p.Description, p.Price, p.Stock, p.ImageURL, p.ID)
	return affectedOrNoRows(res, err)
}

func (r *ProductRepo) Delete(id string) error {
	res, err := r.db.Exec(r.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
	return affectedOrNoRows(res, err)
}

func affectedOrNoRows(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
