package domain

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Role struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// User carries the role name resolved through the roles table. Role is empty
// when role_id is NULL or dangling.
type User struct {
	ID        string  `db:"id" json:"id"`
	Email     string  `db:"email" json:"email"`
	Name      string  `db:"name" json:"name"`
	Hash      string  `db:"password_hash" json:"-"`
	RoleID    *string `db:"role_id" json:"role_id"`
	Role      string  `db:"role" json:"role"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url"`
	CreatedAt string  `db:"created_at" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
