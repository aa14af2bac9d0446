package api

import (
	"database/sql"
	"errors"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"medeasy/pos/domain"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

const userColumns = `id, username, full_name, password, role, is_active, created_at`

// login accepts the OAuth2 password form the web client posts, or JSON.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		req = loginRequest{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
		if err := h.validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(err))
			return
		}
	default:
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	var user domain.User
	err := h.db.GetContext(r.Context(), &user, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.ToLower(strings.TrimSpace(req.Username)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.internalError(w, r, err, "unable to load user")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "incorrect username or password")
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusForbidden, "INACTIVE_USER", "user account is disabled")
		return
	}
	h.issueTokens(w, r, user)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	claims, err := h.parseToken(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token")
		return
	}
	user, ok := h.loadUser(w, r, claims.UserID)
	if !ok {
		return
	}
	if !user.IsActive {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token")
		return
	}
	h.issueTokens(w, r, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r, currentUserID(r))
	if !ok {
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request, id int64) (domain.User, bool) {
	var user domain.User
	err := h.db.GetContext(r.Context(), &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists")
		return domain.User{}, false
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load user")
		return domain.User{}, false
	}
	return user, true
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, user domain.User) {
	access, err := h.generateToken(user, tokenTypeAccess, h.cfg.AccessTokenTTL)
	if err != nil {
		h.internalError(w, r, err, "unable to generate token")
		return
	}
	refresh, err := h.generateToken(user, tokenTypeRefresh, h.cfg.RefreshTokenTTL)
	if err != nil {
		h.internalError(w, r, err, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusOK, domain.Token{AccessToken: access, RefreshToken: refresh, TokenType: "bearer", User: &user})
}
