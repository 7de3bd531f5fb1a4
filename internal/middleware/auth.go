// internal/middleware/auth.go

package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/realms/internal/auth"
)

// TokenVerifier validates a session token and returns who it belongs to.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, string, error)
}

// Identity is the signed-in caller.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// UserFromContext returns the identity stored by RequireAuth.
func UserFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAuth rejects requests without a valid session token (cookie or bearer header).
// A missing token is 401, an invalid or expired one is 403.
func RequireAuth(verifier TokenVerifier, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r, cookieName)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing "+cookieName)
				return
			}
			userID, username, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusForbidden, "invalid token")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: userID, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
