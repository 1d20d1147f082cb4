package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agoradata/agora/internal/domain"
)

type contextKey string

const (
	ownerContextKey contextKey = "owner"
	ownerTagKey     contextKey = "ownerTag"
)

func OwnerFromContext(ctx context.Context) *domain.Owner {
	o, _ := ctx.Value(ownerContextKey).(*domain.Owner)
	return o
}

// ownerTag is seeded into the context by Logging, which runs before auth, and
// filled in here once the owner is known. It exists so the access log can name
// the owner even though authentication happens further down the chain.
type ownerTag struct {
	id string
}

// TagOwner records the authenticated owner for the access log. Handlers that
// do their own token handling, like the feed, call this directly.
func TagOwner(ctx context.Context, owner *domain.Owner) {
	if tag, ok := ctx.Value(ownerTagKey).(*ownerTag); ok {
		tag.id = owner.ID.String()
	}
}

// APIKeyAuth authenticates requests by bearer API key, looked up by hash. The
// key is also accepted as a `token` query parameter for clients that cannot
// set headers, such as browser WebSocket connections.
func APIKeyAuth(ownerStore domain.OwnerStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := ExtractToken(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "missing credentials")
				return
			}

			owner, err := ownerStore.GetByAPIKeyHash(r.Context(), HashAPIKey(apiKey))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			TagOwner(r.Context(), owner)
			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken pulls the bearer token from the Authorization header or, as a
// fallback, the `token` query parameter.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// HashAPIKey is the stored form of an API key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
