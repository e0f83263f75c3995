package model

import "time"

// refreshMargin — запас до истечения access token, после которого
// сессия считается требующей обновления.
const refreshMargin = 30 * time.Second

// SessionUser — идентичность, которую несёт сессия.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session — набор токенов, выданный auth-сервисом.
// Принадлежит Session Store; приложение только наблюдает за ней.
type Session struct {
	AccessToken  string      `json:"access_token"`  //nolint:gosec // G117: структура токена
	RefreshToken string      `json:"refresh_token"` //nolint:gosec // G117: структура токена
	TokenType    string      `json:"token_type"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         SessionUser `json:"user"`
}

// IsExpired проверяет, истёк ли access token.
// Возвращает true если до истечения менее 30 секунд (буфер для refresh).
func (s *Session) IsExpired() bool {
	return !time.Now().Add(refreshMargin).Before(s.ExpiresAt)
}

// AuthEvent — тип события изменения сессии.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
