package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"medeasy/pos/domain"
)

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=ADMIN MANAGER CASHIER"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	skip, limit := pagination(r)
	users := []domain.User{}
	if err := h.db.SelectContext(r.Context(), &users, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, skip); err != nil {
		h.internalError(w, r, err, "unable to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req createUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, err, "unable to secure password")
		return
	}

	user := domain.User{
		Username: strings.ToLower(strings.TrimSpace(req.Username)),
		FullName: strings.TrimSpace(req.FullName),
		Role:     req.Role,
		IsActive: true,
	}
	res, err := h.db.ExecContext(r.Context(), `INSERT INTO users (username, full_name, password, role) VALUES (?, ?, ?, ?)`,
		user.Username, user.FullName, string(hashed), user.Role)
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "USERNAME_TAKEN", "username already registered")
			return
		}
		h.internalError(w, r, err, "unable to create user")
		return
	}
	user.ID, _ = res.LastInsertId()
	respondJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1"`
	Role     *string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER CASHIER"`
	IsActive *bool   `json:"is_active"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if id == currentUserID(r) && ((req.Role != nil && *req.Role != domain.RoleAdmin) || (req.IsActive != nil && !*req.IsActive)) {
		respondError(w, http.StatusConflict, "SELF_LOCKOUT", "you cannot demote or disable your own account")
		return
	}
	user, ok := h.userForAdmin(w, r, id)
	if !ok {
		return
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if _, err := h.db.ExecContext(r.Context(), `UPDATE users SET full_name = ?, role = ?, is_active = ? WHERE id = ?`,
		user.FullName, user.Role, user.IsActive, id); err != nil {
		h.internalError(w, r, err, "unable to update user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// deleteUser removes an account. Users with sales history are deactivated
// instead so receipts keep their cashier.
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	if id == currentUserID(r) {
		respondError(w, http.StatusConflict, "SELF_LOCKOUT", "you cannot delete your own account")
		return
	}
	user, ok := h.userForAdmin(w, r, id)
	if !ok {
		return
	}
	var sales int
	if err := h.db.GetContext(r.Context(), &sales, `SELECT COUNT(*) FROM sales WHERE user_id = ?`, id); err != nil {
		h.internalError(w, r, err, "unable to check sales history")
		return
	}
	if sales > 0 {
		if _, err := h.db.ExecContext(r.Context(), `UPDATE users SET is_active = 0 WHERE id = ?`, id); err != nil {
			h.internalError(w, r, err, "unable to deactivate user")
			return
		}
		user.IsActive = false
		respondJSON(w, http.StatusOK, user)
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM users WHERE id = ?`, id); err != nil {
		h.internalError(w, r, err, "unable to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetPassword sets a new password chosen by an admin.
func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := h.userForAdmin(w, r, id); !ok {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, err, "unable to secure password")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `UPDATE users SET password = ? WHERE id = ?`, string(hashed), id); err != nil {
		h.internalError(w, r, err, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) userForAdmin(w http.ResponseWriter, r *http.Request, id int64) (domain.User, bool) {
	var user domain.User
	err := h.db.GetContext(r.Context(), &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return domain.User{}, false
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load user")
		return domain.User{}, false
	}
	return user, true
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
