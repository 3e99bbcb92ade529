package auth

import (
	"net/http"
	"strings"

	"github.com/nordicgov/citizenship-review/pkg/api"
)

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
	"/api/v1/login",
	"/api/v1/users/signup",
}

// isPublicPath checks if the path should be accessible without auth.
func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware builds JWT auth middleware backed by tm. If tm is nil, every
// non-public request is rejected (fail closed).
func NewMiddleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if tm == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := tm.Parse(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			principal := &BasePrincipal{
				ID:         claims.Subject,
				Email:      claims.Email,
				IsReviewer: claims.IsReviewer,
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
