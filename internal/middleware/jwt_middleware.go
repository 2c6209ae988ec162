package middleware

import (
	"context"
	"net/http"
	"strings"

	"trailblazer_ai/internal/auth"
	"trailblazer_ai/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	UserClaimsKey ContextKey = "userClaims"
	UserIDKey     ContextKey = "userID"
)

// AnonymousUser is the user id assigned when authentication is disabled and
// the caller does not identify itself.
const AnonymousUser = "anonymous"

// UserJWTMiddleware validates bearer tokens and stores the caller in the context.
// With an empty secret authentication is disabled: the X-User-ID header, or
// AnonymousUser, identifies the caller.
func UserJWTMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if userID == "" {
					userID = AnonymousUser
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserIDKey, userID)))
				return
			}

			tokenString := r.Header.Get("Authorization")
			if !strings.HasPrefix(tokenString, "Bearer ") {
				utils.RespondWithTypedError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", 0)
				return
			}

			claims, err := auth.ValidateUserJWT(strings.TrimPrefix(tokenString, "Bearer "), secret)
			if err != nil {
				utils.RespondWithTypedError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", 0)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers lacking role. When authentication
// is disabled there are no claims and every caller passes.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := GetUserClaims(r.Context()); ok && !claims.HasRole(role) {
				utils.RespondWithTypedError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", 0)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserClaims retrieves the token claims from the request context
func GetUserClaims(ctx context.Context) (*auth.UserClaims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*auth.UserClaims)
	return claims, ok
}

// GetUserID retrieves the caller's user id from the request context
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
