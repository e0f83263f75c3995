// client.go — HTTP-клиент к REST API auth-сервиса.
// Операции: SignInWithPassword, RefreshSession, SignOut, GetUser, CheckReady.
// Все запросы несут заголовок apikey с публичным ключом проекта.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ошибки клиента auth-сервиса.
var (
	// ErrInvalidCredentials — неверный email или пароль.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrSessionInvalid — refresh token или access token больше не действителен.
	ErrSessionInvalid = errors.New("сессия недействительна")
	// ErrUnavailable — auth-сервис недоступен (сеть, 5xx).
	ErrUnavailable = errors.New("auth-сервис недоступен")
)

// Client — HTTP-клиент к auth-сервису.
type Client struct {
	baseURL    string // Базовый URL (без trailing slash), например https://xyz.supabase.co/auth/v1
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент auth-сервиса.
// httpClient может быть nil — тогда создаётся клиент с таймаутом timeout.
func New(baseURL, apiKey string, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "gotrue_client")),
	}
}

// SignInWithPassword выполняет вход по email и паролю.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	return c.doTokenRequest(ctx, "password", body)
}

// RefreshSession обменивает refresh token на новую пару токенов.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{
		"refresh_token": refreshToken,
	}
	return c.doTokenRequest(ctx, "refresh_token", body)
}

// SignOut отзывает сессию на стороне auth-сервиса.
// Истёкший или уже отозванный токен не считается ошибкой.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	apiErr := readAPIError(resp)
	if errors.Is(apiErr, ErrSessionInvalid) {
		c.logger.Debug("Сессия уже недействительна при logout", slog.Int("status", resp.StatusCode))
		return nil
	}
	return apiErr
}

// GetUser возвращает пользователя, которому принадлежит access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("декодирование пользователя: %w", err)
	}
	return &user, nil
}

// CheckReady проверяет доступность auth-сервиса через /health.
// Реализует интерфейс ReadinessChecker health endpoint.
func (c *Client) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return "fail", fmt.Sprintf("auth-сервис недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("auth-сервис вернул статус %d", resp.StatusCode)
	}

	var health struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "degraded", fmt.Sprintf("auth-сервис: невалидный JSON /health: %v", err)
	}
	return "ok", fmt.Sprintf("%s %s", health.Name, health.Version)
}

// HealthURL возвращает URL health endpoint (для topologymetrics).
func (c *Client) HealthURL() string {
	return c.baseURL + "/health"
}

// --- HTTP helpers ---

// doTokenRequest выполняет POST /token?grant_type=...
func (c *Client) doTokenRequest(ctx context.Context, grantType string, body any) (*TokenResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/token?grant_type="+url.QueryEscape(grantType), "", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := readAPIError(resp)
		c.logger.Debug("Token endpoint вернул ошибку",
			slog.String("grant_type", grantType),
			slog.String("error", apiErr.Error()),
		)
		return nil, apiErr
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("token response без access_token")
	}
	return &tokenResp, nil
}

// do выполняет запрос к auth-сервису. Сетевые ошибки оборачиваются в ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path, bearer string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// readAPIError читает тело ошибки и строит *APIError.
func readAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		apiErr.Code = eb.code()
		apiErr.Message = eb.message()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
