package posclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"medeasy/pos/domain"
	"medeasy/pos/internal/session"
)

const refreshPath = "/api/v1/auth/token/refresh"

// tokenTransport attaches the stored access token to every request and
// exchanges the refresh token shortly before the access token expires.
type tokenTransport struct {
	base    http.RoundTripper
	baseURL string
	store   session.Store
	skew    time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu sync.Mutex
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sess, err := t.current(req)
	if errors.Is(err, session.ErrNoSession) {
		return t.base.RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	resp, err := t.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.logger.Warn().Str("path", req.URL.Path).Msg("access token rejected, clearing session")
		_ = t.store.Clear()
	}
	return resp, nil
}

// current returns a session whose access token is not about to expire,
// refreshing it when needed.
func (t *tokenTransport) current(req *http.Request) (session.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.store.Load()
	if err != nil {
		return session.Session{}, err
	}
	if !t.expiring(sess.AccessToken) || sess.RefreshToken == "" {
		return sess, nil
	}

	token, err := t.refresh(req, sess.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			_ = t.store.Clear()
			return session.Session{}, ErrSessionExpired
		}
		return session.Session{}, fmt.Errorf("refresh session: %w", err)
	}
	sess.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		sess.RefreshToken = token.RefreshToken
	}
	if token.User != nil {
		sess.User = token.User
	}
	if err := t.store.Save(sess); err != nil {
		return session.Session{}, fmt.Errorf("save session: %w", err)
	}
	t.logger.Debug().Msg("access token refreshed")
	return sess, nil
}

// expiring reads exp without verifying the signature; the server remains the
// judge of validity. Tokens that cannot be parsed are sent as they are.
func (t *tokenTransport) expiring(accessToken string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !t.now().Add(t.skew).Before(claims.ExpiresAt.Time)
}

func (t *tokenTransport) refresh(orig *http.Request, refreshToken string) (domain.Token, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return domain.Token{}, err
	}
	req, err := http.NewRequestWithContext(orig.Context(), http.MethodPost, t.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return domain.Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return domain.Token{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Token{}, decodeAPIError(resp)
	}
	var token domain.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return domain.Token{}, fmt.Errorf("decode token: %w", err)
	}
	if token.AccessToken == "" {
		return domain.Token{}, errors.New("refresh returned no access token")
	}
	return token, nil
}
