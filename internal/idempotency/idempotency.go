// Package idempotency rejects replays of write requests that carry the same
// Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Header carries the client-chosen key.
const Header = "Idempotency-Key"

// Guard is an Idempotency-Key middleware backed by Redis. With a nil client
// every request passes through.
type Guard struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware claims the key before the handler runs. A key already claimed
// gets 409 IDEMPOTENT_REPLAY. When the handler does not succeed the claim is
// released so the same request may be retried.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(Header)
		if header == "" || g.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := g.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		key := hashKey(header)
		ok, err := g.R.SetNX(r.Context(), key, "locked", ttl).Result()
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("idempotency store unavailable")
			writeError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency store unavailable")
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request")
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		completed := false
		defer func() {
			status := ww.Status()
			if !completed || status < 200 || status > 299 {
				_ = g.R.Del(context.Background(), key).Err()
			}
		}()
		next.ServeHTTP(ww, r)
		completed = true
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":{"code":"`+code+`","message":"`+message+`"}}`)
}
