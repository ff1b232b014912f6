package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/adminauth"
)

type contextKey string

const (
	// AdminKey is the context key for the authenticated admin name.
	AdminKey contextKey = "admin"
	// ClaimsKey is the context key for the token claims.
	ClaimsKey contextKey = "claims"
)

// TokenValidator validates admin bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*adminauth.Claims, error)
}

// AdminAuth creates middleware that validates admin tokens.
// Checks Authorization header first, then falls back to cookie for web clients.
func AdminAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			// Try Authorization header first
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			// Fall back to cookie (web clients)
			if tokenString == "" {
				if token, ok := httputil.GetAdminTokenFromCookie(r); ok {
					tokenString = token
				}
			}

			if tokenString == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), AdminKey, claims.Subject)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdmin extracts the admin name from the request context.
func GetAdmin(ctx context.Context) (string, bool) {
	admin, ok := ctx.Value(AdminKey).(string)
	return admin, ok
}

// GetClaims extracts the token claims from the request context.
func GetClaims(ctx context.Context) (*adminauth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*adminauth.Claims)
	return claims, ok
}
