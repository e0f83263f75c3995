// Пакет config — загрузка и валидация конфигурации портала
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации портала.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Сервис аутентификации (GoTrue-совместимый) ---

	// Базовый URL auth-сервиса (например, https://xyz.supabase.co/auth/v1)
	AuthURL string
	// Публичный API-ключ проекта (заголовок apikey)
	AuthAPIKey string
	// Таймаут HTTP-запросов к auth-сервису
	AuthClientTimeout time.Duration
	// Путь к CA-сертификату для TLS auth-сервиса (пустой — системный пул)
	AuthCACertPath string

	// --- JWT ---

	// Ожидаемый issuer access token (по умолчанию AuthURL)
	JWTIssuer string
	// URL JWKS endpoint (по умолчанию AuthURL/.well-known/jwks.json)
	JWKSURL string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Сессии браузера ---

	// Ключ шифрования cookie браузерной сессии (пустой — случайный)
	SessionSecret string
	// Secure flag для cookie
	SecureCookie bool
	// Время жизни неактивного экземпляра приложения в реестре
	InstanceTTL time.Duration
	// Максимальное число экземпляров приложения в реестре
	InstanceCacheSize int
	// Интервал проверки истечения токенов (фоновый refresh)
	RefreshCheckInterval time.Duration
	// Время жизни cookie браузерной сессии и сохранённых токенов
	SessionMaxAge time.Duration

	// --- Redis (опционально) ---

	// Адрес Redis (пустой — сессии хранятся в памяти)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Разрешение ролей и guards ---

	// Таймаут одного поиска роли в БД
	RoleLookupTimeout time.Duration
	// Сколько guard ждёт завершения начальной загрузки сессии
	LoadingWait time.Duration
	// Сколько AdminGuard ждёт проверки роли admin
	AdminCheckWait time.Duration

	// --- S3 (аватары преподавателей, опционально) ---

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	// Время жизни presigned URL аватара
	AvatarURLTTL time.Duration

	// --- Мониторинг ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа сервиса в метриках topologymetrics
	DephealthGroup string
	// Интервал SSE-обновлений состояния аутентификации
	SSEInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// LoadDotEnv подгружает переменные из .env (если файл существует).
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("ошибка чтения .env: %w", err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FP_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FP_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("FP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FP_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("FP_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("FP_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("FP_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("FP_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Сервис аутентификации ---

	cfg.AuthURL, err = getEnvRequired("FP_AUTH_URL")
	if err != nil {
		return nil, err
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")

	cfg.AuthAPIKey, err = getEnvRequired("FP_AUTH_API_KEY")
	if err != nil {
		return nil, err
	}

	cfg.AuthClientTimeout, err = getEnvDuration("FP_AUTH_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_AUTH_CLIENT_TIMEOUT: %w", err)
	}

	cfg.AuthCACertPath = getEnvDefault("FP_AUTH_CA_CERT_PATH", "")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("FP_JWT_ISSUER", cfg.AuthURL)
	cfg.JWKSURL = getEnvDefault("FP_JWKS_URL", cfg.AuthURL+"/.well-known/jwks.json")

	cfg.JWKSRefreshInterval, err = getEnvDuration("FP_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FP_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("FP_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_JWT_LEEWAY: %w", err)
	}

	// --- Сессии браузера ---

	cfg.SessionSecret = getEnvDefault("FP_SESSION_SECRET", "")

	cfg.SecureCookie, err = getEnvBool("FP_SECURE_COOKIE", strings.HasPrefix(cfg.AuthURL, "https"))
	if err != nil {
		return nil, fmt.Errorf("FP_SECURE_COOKIE: %w", err)
	}

	cfg.InstanceTTL, err = getEnvDuration("FP_INSTANCE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FP_INSTANCE_TTL: %w", err)
	}

	cfg.InstanceCacheSize, err = getEnvInt("FP_INSTANCE_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("FP_INSTANCE_CACHE_SIZE: %w", err)
	}
	if cfg.InstanceCacheSize < 1 {
		return nil, fmt.Errorf("FP_INSTANCE_CACHE_SIZE: значение %d должно быть положительным", cfg.InstanceCacheSize)
	}

	cfg.RefreshCheckInterval, err = getEnvDuration("FP_REFRESH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_REFRESH_CHECK_INTERVAL: %w", err)
	}

	cfg.SessionMaxAge, err = getEnvDuration("FP_SESSION_MAX_AGE", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FP_SESSION_MAX_AGE: %w", err)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("FP_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("FP_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("FP_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("FP_REDIS_DB: %w", err)
	}

	// --- Разрешение ролей и guards ---

	cfg.RoleLookupTimeout, err = getEnvDuration("FP_ROLE_LOOKUP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_ROLE_LOOKUP_TIMEOUT: %w", err)
	}

	cfg.LoadingWait, err = getEnvDuration("FP_LOADING_WAIT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_LOADING_WAIT: %w", err)
	}

	cfg.AdminCheckWait, err = getEnvDuration("FP_ADMIN_CHECK_WAIT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_ADMIN_CHECK_WAIT: %w", err)
	}

	// --- S3 ---

	cfg.S3Endpoint = getEnvDefault("FP_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("FP_S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvDefault("FP_S3_BUCKET", "")
	cfg.S3AccessKey = getEnvDefault("FP_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("FP_S3_SECRET_KEY", "")
	if cfg.S3Bucket != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, fmt.Errorf("FP_S3_BUCKET задан, но FP_S3_ACCESS_KEY или FP_S3_SECRET_KEY пусты")
	}

	cfg.AvatarURLTTL, err = getEnvDuration("FP_AVATAR_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FP_AVATAR_URL_TTL: %w", err)
	}

	// --- Мониторинг ---

	cfg.DephealthCheckInterval, err = getEnvDuration("FP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("FP_DEPHEALTH_GROUP", "fitportal")

	cfg.SSEInterval, err = getEnvDuration("FP_SSE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_SSE_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("FP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FP_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// AvatarsEnabled — настроено ли S3-хранилище аватаров.
func (c *Config) AvatarsEnabled() bool {
	return c.S3Bucket != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
