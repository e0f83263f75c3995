// auth.go — обработчики /api/v1/auth.
// POST /api/v1/auth/login — вход по паролю, токены и роль.
// GET /api/v1/auth/me — текущий пользователь по bearer token.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/errors"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/middleware"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
)

// maxLoginBody — предельный размер тела запроса входа.
const maxLoginBody = 16 << 10

// Login — POST /api/v1/auth/login.
// Сессия не сохраняется на сервере: токены возвращаются клиенту.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, openapi_types.ErrValidationEmail) {
			apierrors.ValidationError(w, "Некорректное поле email")
			return
		}
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			apierrors.ValidationError(w, "Некорректное поле "+strings.ToLower(verrs[0].Field()))
			return
		}
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.loginTimeout)
	defer cancel()

	resp, err := h.auth.SignInWithPassword(ctx, string(req.Email), req.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	id, err := uuid.Parse(resp.User.ID)
	if err != nil {
		h.logger.Error("auth-сервис вернул некорректный идентификатор пользователя",
			slog.String("user_id", resp.User.ID),
		)
		apierrors.InternalError(w, "Некорректный ответ сервиса аутентификации")
		return
	}

	user := h.resolver.Resolve(r.Context(), resp.User.ID, resp.User.Email)
	h.logger.Info("Вход через API",
		slog.String("user_id", resp.User.ID),
		slog.String("role", string(user.Kind())),
	)

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    resp.Expiry(time.Now()).UTC(),
		User:         toAuthUserBody(id, user),
	})
}

// GetCurrentUser — GET /api/v1/auth/me.
// Роль разрешается заново на каждый запрос.
func (h *APIHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		apierrors.Unauthorized(w, "Отсутствует идентичность в контексте")
		return
	}

	id, err := uuid.Parse(identity.Subject)
	if err != nil {
		apierrors.Unauthorized(w, "Некорректный sub в токене")
		return
	}

	user := h.resolver.Resolve(r.Context(), identity.Subject, identity.Email)
	writeJSON(w, http.StatusOK, toAuthUserBody(id, user))
}

// writeLoginError отображает категорию ошибки входа в ответ API.
func (h *APIHandler) writeLoginError(w http.ResponseWriter, err error) {
	lerr := authctx.ClassifyLoginError(err)
	switch lerr.Kind {
	case authctx.LoginInvalidCredentials:
		apierrors.InvalidCredentials(w, "Неверный email или пароль")
	case authctx.LoginValidation:
		apierrors.ValidationError(w, lerr.Message)
	case authctx.LoginNetwork:
		h.logger.Warn("Сервис аутентификации недоступен", slog.String("error", err.Error()))
		apierrors.AuthUnavailable(w, "Сервис аутентификации недоступен")
	default:
		h.logger.Error("Ошибка входа через API", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось выполнить вход")
	}
}
