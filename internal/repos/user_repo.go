package repos

import (
	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// The role is resolved through a LEFT JOIN so users with a NULL or dangling
// role_id still load, with an empty role name.
const userSelect = `
	SELECT u.id, u.email, u.name, u.password_hash, u.role_id, COALESCE(r.name, '') AS role,
	       u.avatar_url, u.created_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id`

func (r *UserRepo) ByEmail(email string) (*domain.User, error) {
	var u domain.User
	if err := r.db.Get(&u, r.db.Rebind(userSelect+` WHERE LOWER(u.email) = LOWER(?)`), email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) ByID(id string) (*domain.User, error) {
	var u domain.User
	if err := r.db.Get(&u, r.db.Rebind(userSelect+` WHERE u.id = ?`), id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) List() ([]domain.User, error) {
	out := []domain.User{}
	err := r.db.Select(&out, userSelect+` ORDER BY u.email`)
	return out, err
}

func (r *UserRepo) Create(u domain.User) error {
	_, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO users(id, email, name, password_hash, role_id) VALUES (?, ?, ?, ?, ?)
	`), u.ID, u.Email, u.Name, u.Hash, u.RoleID)
	return err
}

// Update writes name, email and role_id.
func (r *UserRepo) Update(u domain.User) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE users SET name = ?, email = ?, role_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), u.Name, u.Email, u.RoleID, u.ID)
	return affectedOrNoRows(res, err)
}

func (r *UserRepo) UpdateName(id, name string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE users SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), name, id)
	return affectedOrNoRows(res, err)
}

func (r *UserRepo) SetPassword(id, hash string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), hash, id)
	return affectedOrNoRows(res, err)
}

func (r *UserRepo) SetAvatar(id, url string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE users SET avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`), url, id)
	return affectedOrNoRows(res, err)
}

// RoleIDByName resolves a role name; sql.ErrNoRows for unknown roles.
func (r *UserRepo) RoleIDByName(name string) (string, error) {
	var id string
	err := r.db.Get(&id, r.db.Rebind(`SELECT id FROM roles WHERE name = ?`), name)
	return id, err
}

func (r *UserRepo) BindSession(sid, userID string) error {
	_, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO sessions(id, user_id, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, last_seen = CURRENT_TIMESTAMP
	`), sid, userID)
	return err
}

func (r *UserRepo) SessionUser(sid string) (*domain.User, error) {
	var u domain.User
	err := r.db.Get(&u, r.db.Rebind(`
		SELECT u.id, u.email, u.name, u.password_hash, u.role_id, COALESCE(r.name, '') AS role,
		       u.avatar_url, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE s.id = ?`), sid)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UnbindSession(sid string) error {
	_, err := r.db.Exec(r.db.Rebind(`
		UPDATE sessions SET user_id = NULL, last_seen = CURRENT_TIMESTAMP WHERE id = ?
	`), sid)
	return err
}

// DeleteUserCascade removes the user with their sessions and cart. Orders are
// kept for bookkeeping with user_id cleared.
func (r *UserRepo) DeleteUserCascade(userID string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cartIDs []string
	if err := tx.Select(&cartIDs, tx.Rebind(`SELECT id FROM carts WHERE user_id = ?`), userID); err != nil {
		return err
	}
	if len(cartIDs) > 0 {
		query, args, err := sqlx.In(`DELETE FROM cart_items WHERE cart_id IN (?)`, cartIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
			return err
		}
		query, args, err = sqlx.In(`DELETE FROM carts WHERE id IN (?)`, cartIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
			return err
		}
	}

	stmts := []string{
		`DELETE FROM sessions WHERE user_id = ?`,
		`UPDATE orders SET user_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(tx.Rebind(s), userID); err != nil {
			return err
		}
	}

	res, err := tx.Exec(tx.Rebind(`DELETE FROM users WHERE id = ?`), userID)
	if err := affectedOrNoRows(res, err); err != nil {
		return err
	}
	return tx.Commit()
}
