package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/handlers"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/middleware"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/openapi"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/config"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/database"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/server"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/service"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/auth"
	uihandlers "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/handlers"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/i18n"
	uimiddleware "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/middleware"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер портала",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg, logger, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "не применять миграции при старте")

	return cmd
}

func serve(cfg *config.Config, logger *slog.Logger, skipMigrations bool) error {
	logger.Info("Портал запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FP_DEPHEALTH_GROUP") == "" {
		logger.Warn("FP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 1. Применение миграций БД
	if !skipMigrations {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}
	}

	// 2. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 2.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. HTTP-клиент auth-сервиса (с кастомным CA, если задан)
	httpClient, err := gotrue.NewHTTPClient(cfg.AuthCACertPath, cfg.AuthClientTimeout)
	if err != nil {
		return fmt.Errorf("HTTP-клиент auth-сервиса: %w", err)
	}
	if cfg.AuthCACertPath != "" {
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.AuthCACertPath))
	}

	// 4. Клиент auth-сервиса
	authClient := gotrue.New(cfg.AuthURL, cfg.AuthAPIKey, httpClient, cfg.AuthClientTimeout, logger)
	logger.Info("Клиент auth-сервиса создан", slog.String("url", cfg.AuthURL))

	// 5. Проверка access token по JWKS
	verifier, err := sessionstore.NewTokenVerifier(
		cfg.JWKSURL,
		cfg.JWTIssuer,
		httpClient,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		return fmt.Errorf("JWT verifier: %w", err)
	}
	logger.Info("JWT verifier инициализирован",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 6. Хранилище сессий: Redis, если задан адрес, иначе память процесса
	var (
		persister    sessionstore.Persister
		redisChecker handlers.ReadinessChecker
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		redisPersister := sessionstore.NewRedisPersister(rdb, cfg.SessionMaxAge)
		persister = redisPersister
		redisChecker = redisPersister
		logger.Info("Сессии хранятся в Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		persister = sessionstore.NewMemoryPersister()
		logger.Warn("FP_REDIS_ADDR не задан, сессии не переживут рестарт")
	}

	// 7. Разрешение ролей
	roleRepo := repository.NewRoleRepository(pool)
	var avatars service.AvatarSigner
	if cfg.AvatarsEnabled() {
		avatars = service.NewS3AvatarSigner(service.S3Params{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			TTL:       cfg.AvatarURLTTL,
		})
		logger.Info("Аватары подписываются через S3", slog.String("bucket", cfg.S3Bucket))
	}
	resolver := service.NewResolver(roleRepo, avatars, cfg.RoleLookupTimeout, logger)

	// 8. Экземпляры приложения на браузерную сессию
	factory := &authctx.Factory{
		Client:          authClient,
		Persister:       persister,
		Resolver:        resolver,
		RefreshInterval: cfg.RefreshCheckInterval,
		Logger:          logger,
	}

	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SecureCookie, cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("FP_SESSION_SECRET не задан, cookie сессий не переживут рестарт")
	}

	registry := auth.NewRegistry(factory, sessionMgr, cfg.InstanceCacheSize, cfg.InstanceTTL, logger)
	defer registry.Close()

	// 9. Переводы интерфейса
	bundle := i18n.Init(logger)
	if err := i18n.LoadFromEmbedFS(bundle, logger); err != nil {
		return fmt.Errorf("загрузка переводов: %w", err)
	}

	ui := &server.UIComponents{
		Registry:      registry,
		Guards:        uimiddleware.NewGuards(resolver, cfg.LoadingWait, cfg.AdminCheckWait, logger),
		AuthHandler:   uihandlers.NewAuthHandler(cfg.AuthClientTimeout, logger),
		PortalHandler: uihandlers.NewPortalHandler(cfg.LoadingWait, logger),
		EventsHandler: uihandlers.NewEventsHandler(cfg.SSEInterval, logger),
	}

	// 10. JSON API: контракт, bearer-аутентификация, health
	doc, err := openapi.Load(ctx)
	if err != nil {
		return fmt.Errorf("OpenAPI-контракт: %w", err)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		return fmt.Errorf("валидатор запросов: %w", err)
	}

	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), authClient, redisChecker)
	api := server.APIComponents{
		Handler:    handlers.NewAPIHandler(healthHandler, authClient, resolver, cfg.AuthClientTimeout, logger),
		BearerAuth: middleware.NewBearerAuth(verifier, logger),
		Validator:  validator,
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + auth-сервис)
	dephealthSvc, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "fitportal",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		AuthHealthURL: authClient.HealthURL(),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, api, ui)
	runErr := srv.Run()

	// 13. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		return fmt.Errorf("ошибка сервера: %w", runErr)
	}
	logger.Info("Портал остановлен")
	return nil
}
