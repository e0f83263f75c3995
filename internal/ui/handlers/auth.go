// Пакет handlers — HTTP-обработчики веб-портала.
// auth.go — вход по email и паролю, выход.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-playground/validator/v10"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/pages"
	uimiddleware "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/middleware"
)

// loginForm — поля формы входа.
type loginForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
	From     string
}

// AuthHandler — обработчики входа и выхода.
type AuthHandler struct {
	validate *validator.Validate
	// loginTimeout — предельное время вызова auth-сервиса
	loginTimeout time.Duration
	logger       *slog.Logger
}

// NewAuthHandler создаёт AuthHandler.
func NewAuthHandler(loginTimeout time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		validate:     validator.New(),
		loginTimeout: loginTimeout,
		logger:       logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLoginPage — GET /login.
// Уже вошедший пользователь сразу уходит по from.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")

	if c := authctx.FromContext(r.Context()); c != nil && c.Snapshot().IsAuthenticated {
		http.Redirect(w, r, uimiddleware.SafeRedirect(from, "/"), http.StatusFound)
		return
	}

	h.render(w, r, http.StatusOK, pages.LoginData{From: from})
}

// HandleLogin — POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	c := authctx.FromContext(r.Context())
	if c == nil {
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Некорректная форма", http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		From:     r.PostFormValue("from"),
	}
	data := pages.LoginData{Email: form.Email, From: form.From}

	if err := h.validate.Struct(form); err != nil {
		data.ErrorKey = "login.error." + string(authctx.LoginValidation)
		h.render(w, r, http.StatusBadRequest, data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.loginTimeout)
	defer cancel()

	if lerr := c.Login(ctx, form.Email, form.Password); lerr != nil {
		data.ErrorKey = "login.error." + string(lerr.Kind)
		h.render(w, r, loginErrorStatus(lerr), data)
		return
	}

	http.Redirect(w, r, uimiddleware.SafeRedirect(form.From, "/"), http.StatusSeeOther)
}

// HandleLogout — POST /logout.
// Локальная сессия очищается даже при ошибке auth-сервиса.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c := authctx.FromContext(r.Context()); c != nil {
		if err := c.Logout(r.Context()); err != nil {
			h.logger.Warn("Ошибка выхода в auth-сервисе, локальная сессия очищена",
				slog.String("error", err.Error()),
			)
		}
	}
	http.Redirect(w, r, uimiddleware.LoginPath, http.StatusSeeOther)
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, data pages.LoginData) {
	if uimiddleware.SafeRedirect(data.From, "") == "" {
		data.From = ""
	}
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(pages.Login(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

func loginErrorStatus(lerr *authctx.LoginError) int {
	switch lerr.Kind {
	case authctx.LoginInvalidCredentials:
		return http.StatusUnauthorized
	case authctx.LoginValidation:
		return http.StatusBadRequest
	case authctx.LoginNetwork:
		return http.StatusServiceUnavailable
	default:
		if errors.Is(lerr, context.Canceled) {
			return http.StatusRequestTimeout
		}
		return http.StatusInternalServerError
	}
}
