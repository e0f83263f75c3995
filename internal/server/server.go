// Пакет server — HTTP-сервер портала с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/handlers"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/middleware"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/openapi"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/config"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/rbac"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/auth"
	uihandlers "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/handlers"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/i18n"
	uimiddleware "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/middleware"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/static"
)

// APIComponents — компоненты JSON API.
type APIComponents struct {
	Handler    *handlers.APIHandler
	BearerAuth *middleware.BearerAuth
	// Validator может быть nil: запросы не сверяются с контрактом
	Validator *middleware.RequestValidator
}

// UIComponents — компоненты веб-портала.
type UIComponents struct {
	Registry      *auth.Registry
	Guards        *uimiddleware.Guards
	AuthHandler   *uihandlers.AuthHandler
	PortalHandler *uihandlers.PortalHandler
	EventsHandler *uihandlers.EventsHandler
}

// Server — HTTP-сервер портала.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// ui может быть nil: тогда поднимается только JSON API.
func New(cfg *config.Config, logger *slog.Logger, api APIComponents, ui *UIComponents) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, api, ui),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter строит маршруты портала.
func NewRouter(logger *slog.Logger, api APIComponents, ui *UIComponents) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую
	router.Get("/health/live", api.Handler.HealthLive)
	router.Get("/health/ready", api.Handler.HealthReady)
	router.Get("/metrics", api.Handler.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if api.Validator != nil {
			r.Use(api.Validator.Middleware())
		}
		r.Get("/openapi.yaml", serveContract)
		r.Post("/auth/login", api.Handler.Login)
		r.With(api.BearerAuth.Middleware()).Get("/auth/me", api.Handler.GetCurrentUser)
	})

	if ui != nil {
		mountUI(router, ui)
	}

	return router
}

// serveContract отдаёт OpenAPI контракт клиентам API.
func serveContract(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Raw())
}

// mountUI подключает страницы портала. Всё, кроме статики и выбора языка,
// идёт через экземпляр приложения браузерной сессии.
func mountUI(router chi.Router, ui *UIComponents) {
	router.Handle("/static/*", http.StripPrefix("/static", http.FileServer(static.FileSystem())))
	router.Post("/set-language", uihandlers.HandleSetLanguage)

	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())
		r.Use(ui.Registry.Middleware())

		r.Get(uimiddleware.LoginPath, ui.AuthHandler.HandleLoginPage)
		r.Post(uimiddleware.LoginPath, ui.AuthHandler.HandleLogin)
		r.Post("/logout", ui.AuthHandler.HandleLogout)
		r.Get("/events/auth", ui.EventsHandler.HandleAuthEvents)

		r.With(ui.Guards.ProtectedRoute).Get("/", ui.PortalHandler.HandleHome)
		r.With(ui.Guards.ProtectedRoute).Get(rbac.HomePath(model.KindUnknown), ui.PortalHandler.HandlePending)

		for _, kind := range []model.RoleKind{model.KindProfessor, model.KindAluno} {
			r.Route(rbac.HomePath(kind), func(pr chi.Router) {
				pr.Use(ui.Guards.ProtectedRoute, ui.Guards.RoleRoute(kind))
				pr.Get("/", ui.PortalHandler.HandlePortal)
				pr.Get("/*", ui.PortalHandler.HandlePortal)
			})
		}

		r.Route(rbac.HomePath(model.KindAdmin), func(ar chi.Router) {
			ar.Use(ui.Guards.AdminGuard)
			ar.Get("/", ui.PortalHandler.HandlePortal)
			ar.Get("/*", ui.PortalHandler.HandlePortal)
		})
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
