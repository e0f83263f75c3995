// auth.go — bearer-аутентификация JSON API.
// Access token проверяется по JWKS auth-сервиса (sessionstore.TokenVerifier),
// идентичность помещается в контекст запроса.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/errors"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
)

type contextKey string

// ContextKeyIdentity — идентичность из access token в контексте запроса.
const ContextKeyIdentity contextKey = "identity"

// IdentityVerifier проверяет access token. Реализуется *sessionstore.TokenVerifier.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*sessionstore.Identity, error)
}

// BearerAuth — middleware аутентификации по заголовку Authorization.
type BearerAuth struct {
	verifier IdentityVerifier
	logger   *slog.Logger
}

// NewBearerAuth создаёт BearerAuth.
func NewBearerAuth(verifier IdentityVerifier, logger *slog.Logger) *BearerAuth {
	return &BearerAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "bearer_auth")),
	}
}

// Middleware извлекает Bearer token, проверяет его и помещает Identity в контекст.
func (b *BearerAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			identity, err := b.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				b.logger.Debug("Bearer token отклонён",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext извлекает Identity из контекста запроса.
// Возвращает nil, если запрос не прошёл BearerAuth.
func IdentityFromContext(ctx context.Context) *sessionstore.Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*sessionstore.Identity)
	return id
}

// SubjectFromContext извлекает sub из контекста запроса.
func SubjectFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Subject
}
