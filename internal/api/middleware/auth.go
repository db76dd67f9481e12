package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/skorper/harmony/internal/api/response"
	"github.com/skorper/harmony/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading key characters stored in clear for
// lookup.
const KeyPrefixLen = 8

// APIKeyStore is the part of the store the auth middleware reads.
type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	store APIKeyStore
}

// NewAuth creates a new Auth middleware.
func NewAuth(s APIKeyStore) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token, looks up the API key, and sets
// the owning username and the key's scopes in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < KeyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		keys, err := a.store.GetAPIKeyByPrefix(r.Context(), rawKey[:KeyPrefixLen])
		if err != nil {
			slog.Error("api key lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		idx := slices.IndexFunc(keys, func(k *models.APIKey) bool {
			return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil
		})
		if idx < 0 {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}
		key := keys[idx]

		go func(id uuid.UUID) {
			if err := a.store.UpdateAPIKeyLastUsed(context.Background(), id); err != nil {
				slog.Warn("api key last used update failed", "key_id", id, "error", err)
			}
		}(key.ID)

		ctx := SetUsername(r.Context(), key.Username)
		ctx = SetScopes(ctx, key.Scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(GetScopes(r), scope) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
