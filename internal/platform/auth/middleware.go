package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	// HeaderUserID carries the authenticated principal id set by the gateway.
	HeaderUserID = "X-User-Id"
	// HeaderUserRole carries the principal's role tag set by the gateway.
	HeaderUserRole = "X-User-Role"
)

// Middleware extracts the forwarded principal headers and stores the identity
// on the request context. Requests without headers pass through anonymously;
// role enforcement happens per route via RequireRole.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			role := normaliseRole(r.Header.Get(HeaderUserRole))
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity := &Identity{UserID: userID, Role: role}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects requests whose identity is missing or lacks one of the
// allowed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
