package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"medeasy/pos/domain"
)

// EnsureAdmin creates the first ADMIN account when the users table is empty.
// It reports whether a user was created.
func EnsureAdmin(ctx context.Context, db *sqlx.DB, username, password string) (bool, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return false, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required to bootstrap an empty database")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO users (username, full_name, password, role) VALUES (?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(username)), "Administrator", string(hashed), domain.RoleAdmin); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
