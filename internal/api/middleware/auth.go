package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// AuthValidator resolves a bearer token to a user id.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			userID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrAPIKeyRevoked) {
					api.Error(w, http.StatusUnauthorized, "api key has been revoked")
					return
				}
				if !errors.Is(err, domain.ErrInvalidAPIKey) {
					logger.FromContext(r.Context()).Error("api key validation failed", zap.Error(err))
				}
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			setHeldUser(r.Context(), userID)
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With(zap.String("user_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
