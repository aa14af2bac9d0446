package domain

// Roles.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleCashier = "CASHIER"
)

type User struct {
	ID        int64  `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	FullName  string `json:"full_name" db:"full_name"`
	Password  string `json:"-" db:"password"`
	Role      string `json:"role" db:"role"`
	IsActive  bool   `json:"is_active" db:"is_active"`
	CreatedAt string `json:"created_at,omitempty" db:"created_at"`
}

// Token is returned by login and refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         *User  `json:"user,omitempty"`
}
