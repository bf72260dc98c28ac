package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/auth"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// ContextKeyUserID is the context key for user ID
	ContextKeyUserID ContextKey = "userID"
	// ContextKeyBearerToken is the context key for bearer token
	ContextKeyBearerToken ContextKey = "bearerToken"
)

// AuthMiddleware validates the bearer token of the hosted auth provider and adds
// the user ID to the context. WebSocket clients may pass the token as ?token=.
func AuthMiddleware(tokenValidator auth.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				renderError(w, r, http.StatusUnauthorized, "Missing authorization token")
				return
			}

			parsed, err := tokenValidator.ValidateJWT(token)
			if err != nil {
				logging.LogDebugf("Rejected token: %v", err)
				renderError(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			userID, err := auth.UserIDFromToken(*parsed)
			if err != nil {
				renderError(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			ctx = context.WithValue(ctx, ContextKeyBearerToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// GetUserIDFromContext retrieves the user ID from the request context
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

// GetBearerTokenFromContext retrieves the bearer token from the request context
func GetBearerTokenFromContext(ctx context.Context) string {
	token, ok := ctx.Value(ContextKeyBearerToken).(string)
	if !ok {
		return ""
	}
	return token
}

// WithUserID returns a copy of ctx carrying userID, as AuthMiddleware does
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}
