// auth.go — проверка scope для служебных endpoints.
// Токен берётся так же, как в файловых операциях: X-Token или Bearer.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apierrors "github.com/bigkaa/goartstore/files-manager/internal/api/errors"
	"github.com/bigkaa/goartstore/files-manager/internal/auth"
)

// ScopeAuthorizer разрешает токен с проверкой scope (auth.JWTResolver).
type ScopeAuthorizer interface {
	Authorize(ctx context.Context, token, scope string) (primitive.ObjectID, error)
}

// RequireScope возвращает middleware, пропускающий только токены со scope.
// Без токена или с неразрешённым токеном — 401, без scope — 403.
// authz == nil (JWT не настроен) — endpoint закрыт для всех: 403.
func RequireScope(authz ScopeAuthorizer, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				apierrors.Unauthorized(w)
				return
			}
			if authz == nil {
				logger.Warn("Служебный endpoint недоступен: JWT не настроен",
					slog.String("path", r.URL.Path),
					slog.String("scope", scope),
				)
				apierrors.Forbidden(w)
				return
			}

			userID, err := authz.Authorize(r.Context(), token, scope)
			switch {
			case err == nil:
				logger.Info("Доступ к служебному endpoint разрешён",
					slog.String("path", r.URL.Path),
					slog.String("user_id", userID.Hex()),
				)
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrForbidden):
				apierrors.Forbidden(w)
			case errors.Is(err, auth.ErrUnresolved):
				apierrors.Unauthorized(w)
			default:
				logger.Error("Ошибка проверки scope",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w)
			}
		})
	}
}
