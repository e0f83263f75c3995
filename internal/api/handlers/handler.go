// Пакет handlers — обработчики JSON API портала.
// handler.go — основной обработчик API и DTO контракта.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authsession"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
)

// PasswordAuthenticator — вход по паролю в auth-сервисе.
// Реализуется *gotrue.Client.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*gotrue.TokenResponse, error)
}

// APIHandler — основной обработчик JSON API.
type APIHandler struct {
	health   *HealthHandler
	auth     PasswordAuthenticator
	resolver authsession.UserResolver
	validate *validator.Validate
	// loginTimeout — предельное время вызова auth-сервиса при входе
	loginTimeout time.Duration
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth PasswordAuthenticator,
	resolver authsession.UserResolver,
	loginTimeout time.Duration,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		auth:         auth,
		resolver:     resolver,
		validate:     validator.New(),
		loginTimeout: loginTimeout,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- DTO ---

// LoginRequest — тело POST /api/v1/auth/login.
type LoginRequest struct {
	Email    openapi_types.Email `json:"email" validate:"required,email,max=254"`
	Password string              `json:"password" validate:"required,max=256"`
}

// LoginResponse — открытая сессия и пользователь с разрешённой ролью.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`  //nolint:gosec // G117: структура токена
	RefreshToken string       `json:"refresh_token"` //nolint:gosec // G117: структура токена
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         AuthUserBody `json:"user"`
}

// AuthUserBody — пользователь портала в ответах API.
type AuthUserBody struct {
	ID      openapi_types.UUID   `json:"id"`
	Email   *openapi_types.Email `json:"email,omitempty"`
	Nome    string               `json:"nome"`
	Tipo    string               `json:"tipo"`
	Profile *ProfileBody         `json:"profile,omitempty"`
}

// ProfileBody — расширенный профиль преподавателя.
type ProfileBody struct {
	Especialidade string `json:"especialidade,omitempty"`
	CREF          string `json:"cref,omitempty"`
	Telefone      string `json:"telefone,omitempty"`
	Bio           string `json:"bio,omitempty"`
	FotoURL       string `json:"foto_url,omitempty"`
}

// toAuthUserBody маппит доменного пользователя в DTO.
// id — уже разобранный идентификатор пользователя.
func toAuthUserBody(id openapi_types.UUID, user *model.AuthUser) AuthUserBody {
	body := AuthUserBody{
		ID:   id,
		Nome: user.Nome,
		Tipo: string(user.Kind()),
	}
	if user.Email != "" {
		email := openapi_types.Email(user.Email)
		body.Email = &email
	}
	if p := user.Profile(); p != nil {
		body.Profile = &ProfileBody{
			Especialidade: p.Especialidade,
			CREF:          p.CREF,
			Telefone:      p.Telefone,
			Bio:           p.Bio,
			FotoURL:       p.FotoURL,
		}
	}
	return body
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
