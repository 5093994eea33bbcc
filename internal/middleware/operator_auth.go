package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// RequireOperatorToken guards the control API with a static bearer token.
// When no token is configured the control API is open, which is the
// expected mode behind a trusted reverse proxy.
func RequireOperatorToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := bearerToken(r)
			if presented == "" {
				debug.Error("No operator token provided for %s %s", r.Method, r.URL.Path)
				sendAPIError(w, "Operator token required", "AUTH_MISSING_CREDENTIALS", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				debug.Error("Invalid operator token for %s %s", r.Method, r.URL.Path)
				sendAPIError(w, "Invalid credentials", "AUTH_INVALID_CREDENTIALS", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling
// back to X-Operator-Token for clients that cannot set Authorization.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Operator-Token")
}
