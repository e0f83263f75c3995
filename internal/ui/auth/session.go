// Пакет auth — браузерные сессии веб-портала.
// Cookie содержит только зашифрованный идентификатор браузерной сессии
// (AES-256-GCM); токены хранятся в Session Store на сервере.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName — имя cookie браузерной сессии.
const SessionCookieName = "fp_session"

// BrowserSession — содержимое cookie.
type BrowserSession struct {
	// ID — идентификатор браузерной сессии, ключ экземпляра приложения.
	ID string `json:"sid"`
	// IssuedAt — момент выдачи (Unix timestamp).
	IssuedAt int64 `json:"iat"`
}

// SessionManager шифрует и дешифрует BrowserSession в HTTP cookie.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
	maxAge time.Duration
}

// NewSessionManager создаёт менеджер сессий.
// key — base64 32-байтового ключа либо произвольная строка (хешируется SHA-256).
// Пустой key даёт случайный ключ: cookie не переживут рестарт.
func NewSessionManager(key string, secure bool, maxAge time.Duration) (*SessionManager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes = sha256Key(key)
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{
		gcm:    gcm,
		secure: secure,
		maxAge: maxAge,
	}, nil
}

// NewBrowserSession выдаёт новую браузерную сессию со случайным ID.
func NewBrowserSession() *BrowserSession {
	return &BrowserSession{
		ID:       uuid.NewString(),
		IssuedAt: time.Now().Unix(),
	}
}

// Encrypt шифрует BrowserSession и возвращает base64-строку.
func (sm *SessionManager) Encrypt(data *BrowserSession) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce в начале ciphertext
	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует cookie. Сессия без валидного UUID отклоняется.
func (sm *SessionManager) Decrypt(encrypted string) (*BrowserSession, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var data BrowserSession
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	if _, err := uuid.Parse(data.ID); err != nil {
		return nil, fmt.Errorf("некорректный идентификатор сессии: %w", err)
	}

	return &data, nil
}

// SetSessionCookie устанавливает зашифрованный cookie в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *BrowserSession) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   int(sm.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSessionFromRequest извлекает BrowserSession из cookie запроса.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*BrowserSession, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie удаляет cookie из ответа.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sha256Key хеширует строковый ключ в 32 bytes через SHA-256.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
