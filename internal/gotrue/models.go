// Пакет gotrue — HTTP-клиент к REST API GoTrue-совместимого auth-сервиса.
// models.go — модели запросов и ответов.
package gotrue

import (
	"fmt"
	"time"
)

// TokenResponse — ответ /token (grant_type=password и refresh_token).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	// ExpiresAt — Unix timestamp истечения (может отсутствовать у старых версий)
	ExpiresAt int64 `json:"expires_at"`
	User      User  `json:"user"`
}

// Expiry возвращает момент истечения access token.
// Предпочитает expires_at, при его отсутствии считает от now + expires_in.
func (t *TokenResponse) Expiry(now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0)
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// User — пользователь auth-сервиса.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// errorBody — тело ошибки. Старые версии GoTrue отвечают в формате
// OAuth2 (error/error_description), новые — code/error_code/msg.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

// code возвращает машиночитаемый код ошибки.
func (e errorBody) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return e.Error
}

// message возвращает человекочитаемое сообщение.
func (e errorBody) message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Description != "":
		return e.Description
	default:
		return e.Message
	}
}

// APIError — ошибка, возвращённая auth-сервисом.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth-сервис вернул статус %d: %s — %s", e.Status, e.Code, e.Message)
}

// Unwrap сопоставляет ошибку API с sentinel-ошибками пакета.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "invalid_credentials",
		e.Code == "invalid_grant" && e.Message == "Invalid login credentials":
		return ErrInvalidCredentials
	case e.Code == "refresh_token_not_found",
		e.Code == "refresh_token_already_used",
		e.Code == "session_not_found",
		e.Code == "invalid_grant":
		return ErrSessionInvalid
	case e.Status == 401 || e.Status == 403:
		return ErrSessionInvalid
	case e.Status >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}
