package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/example/ec-checkout/internal/auth"
)

// SessionCookie is the cookie the identity provider's browser SDK sets
const SessionCookie = "__session"

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts the session token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// AuthMiddleware validates session tokens and adds the claims to context
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminPolicy decides who may use the back-office routes. A caller is an
// admin when the token carries one of Roles or its subject is listed in
// Principals. The zero policy admits nobody.
type AdminPolicy struct {
	Roles      []string
	Principals []string
}

// Allows reports whether claims satisfy the policy
func (p AdminPolicy) Allows(claims *auth.Claims) bool {
	if claims == nil {
		return false
	}
	if slices.Contains(p.Principals, claims.Subject) {
		return true
	}
	for _, role := range p.Roles {
		if claims.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin evaluates the policy against the caller in ctx
func (p AdminPolicy) IsAdmin(ctx context.Context) bool {
	claims, _ := GetUserFromContext(ctx)
	return p.Allows(claims)
}

// RequireAdmin rejects callers the policy does not admit
func RequireAdmin(policy AdminPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !policy.Allows(claims) {
				respondError(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext retrieves the caller's claims from the request context
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok
}

// GetSubject returns the identity provider user id of the caller, or ""
func GetSubject(ctx context.Context) string {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}
