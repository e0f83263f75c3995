// Пакет middleware — HTTP middleware веб-портала.
// auth.go — охрана маршрутов: ProtectedRoute, AdminGuard, RoleRoute.
// Решения принимаются по Auth Context экземпляра приложения, который
// кладёт в контекст запроса auth.Registry.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/rbac"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/pages"
)

var guardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fp_guard_decisions_total",
		Help: "Решения охраны маршрутов",
	},
	[]string{"guard", "decision"},
)

// Решения охраны.
const (
	decisionAllow       = "allow"
	decisionPlaceholder = "placeholder"
	decisionRedirect    = "redirect"
	decisionDeny        = "deny"
)

// LoginPath — страница входа.
const LoginPath = "/login"

// placeholderRefresh — период автообновления заглушки, секунды.
const placeholderRefresh = 1

// denyRedirectWait — сколько секунд показывается уведомление об отказе.
const denyRedirectWait = 3

// AdminChecker — прямая проверка администратора.
// Реализуется *service.Resolver.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Guards — фабрика middleware охраны маршрутов.
type Guards struct {
	admins AdminChecker
	// loadingWait — сколько запрос ждёт окончания загрузки контекста
	loadingWait time.Duration
	// adminCheckWait — сколько запрос ждёт результата проверки администратора
	adminCheckWait time.Duration
	logger         *slog.Logger
}

// NewGuards создаёт Guards.
func NewGuards(admins AdminChecker, loadingWait, adminCheckWait time.Duration, logger *slog.Logger) *Guards {
	return &Guards{
		admins:         admins,
		loadingWait:    loadingWait,
		adminCheckWait: adminCheckWait,
		logger:         logger.With(slog.String("component", "ui_guards")),
	}
}

// ProtectedRoute пропускает только аутентифицированных.
// Пока контекст загружается, отдаёт заглушку; без сессии перенаправляет
// на вход с параметром from.
func (g *Guards) ProtectedRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := g.waitReady(w, r, "protected")
		if !ok {
			return
		}
		if !snap.IsAuthenticated {
			g.redirectToLogin(w, r, "protected")
			return
		}
		guardDecisionsTotal.WithLabelValues("protected", decisionAllow).Inc()
		next.ServeHTTP(w, r)
	})
}

// AdminGuard пропускает только администраторов. Для неаутентифицированного
// проверка администратора не выполняется. Отказ и ошибка проверки дают
// одинаковый результат: уведомление и уход на домашнюю страницу.
func (g *Guards) AdminGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := g.waitReady(w, r, "admin")
		if !ok {
			return
		}
		if !snap.IsAuthenticated {
			g.redirectToLogin(w, r, "admin")
			return
		}

		userID := snap.Session.User.ID
		type result struct {
			admin bool
			err   error
		}
		done := make(chan result, 1)
		go func() {
			admin, err := g.admins.IsAdmin(r.Context(), userID)
			done <- result{admin: admin, err: err}
		}()

		timer := time.NewTimer(g.adminCheckWait)
		defer timer.Stop()

		select {
		case res := <-done:
			if res.err != nil {
				g.logger.Warn("Ошибка проверки администратора",
					slog.String("user_id", userID),
					slog.String("error", res.err.Error()),
				)
			}
			if res.err != nil || !res.admin {
				g.deny(w, r, "admin", snap, "access.denied.admin")
				return
			}
			guardDecisionsTotal.WithLabelValues("admin", decisionAllow).Inc()
			next.ServeHTTP(w, r)
		case <-timer.C:
			g.placeholder(w, r, "admin")
		case <-r.Context().Done():
		}
	})
}

// RoleRoute пропускает только пользователей с разрешённой ролью kind.
// Ставится после ProtectedRoute.
func (g *Guards) RoleRoute(kind model.RoleKind) func(http.Handler) http.Handler {
	guard := "role_" + string(kind)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := authctx.FromContext(r.Context())
			if c == nil {
				g.missingContext(w)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), g.loadingWait)
			snap, settled := c.WaitSettled(ctx)
			cancel()

			switch {
			case !snap.IsAuthenticated && !snap.Loading:
				g.redirectToLogin(w, r, guard)
			case !settled:
				g.placeholder(w, r, guard)
			case snap.Kind() != kind:
				g.deny(w, r, guard, snap, "access.denied.role")
			default:
				guardDecisionsTotal.WithLabelValues(guard, decisionAllow).Inc()
				next.ServeHTTP(w, r)
			}
		})
	}
}

// waitReady ждёт окончания загрузки контекста не дольше loadingWait.
// false означает, что ответ уже записан.
func (g *Guards) waitReady(w http.ResponseWriter, r *http.Request, guard string) (authctx.Snapshot, bool) {
	c := authctx.FromContext(r.Context())
	if c == nil {
		g.missingContext(w)
		return authctx.Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.loadingWait)
	defer cancel()

	snap, ready := c.WaitReady(ctx)
	if !ready {
		g.placeholder(w, r, guard)
		return snap, false
	}
	return snap, true
}

func (g *Guards) redirectToLogin(w http.ResponseWriter, r *http.Request, guard string) {
	guardDecisionsTotal.WithLabelValues(guard, decisionRedirect).Inc()
	http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
}

func (g *Guards) placeholder(w http.ResponseWriter, r *http.Request, guard string) {
	guardDecisionsTotal.WithLabelValues(guard, decisionPlaceholder).Inc()
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(pages.Loading(placeholderRefresh)).ServeHTTP(w, r)
}

func (g *Guards) deny(w http.ResponseWriter, r *http.Request, guard string, snap authctx.Snapshot, noticeKey string) {
	guardDecisionsTotal.WithLabelValues(guard, decisionDeny).Inc()

	home := rbac.HomePath(snap.Kind())
	if r.URL.Path == home || strings.HasPrefix(r.URL.Path, home+"/") {
		home = rbac.HomePath(model.KindUnknown)
	}

	g.logger.Info("Доступ запрещён",
		slog.String("guard", guard),
		slog.String("path", r.URL.Path),
		slog.String("role", string(snap.Kind())),
	)

	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(pages.AccessDenied(pages.AccessDeniedData{
		User:         snap.User,
		NoticeKey:    noticeKey,
		RedirectTo:   home,
		RedirectWait: denyRedirectWait,
	}), templ.WithStatus(http.StatusForbidden)).ServeHTTP(w, r)
}

func (g *Guards) missingContext(w http.ResponseWriter) {
	g.logger.Error("Auth Context отсутствует в запросе: маршрут не обёрнут в Registry.Middleware")
	http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
}

// LoginURL строит адрес входа с возвратом на from.
func LoginURL(from string) string {
	if from == "" || from == "/" {
		return LoginPath
	}
	return LoginPath + "?from=" + url.QueryEscape(from)
}

// SafeRedirect возвращает from, если это локальный абсолютный путь,
// иначе fallback.
func SafeRedirect(from, fallback string) string {
	if from == "" || from[0] != '/' {
		return fallback
	}
	// "//host" и "/\host" браузеры трактуют как внешний адрес
	if len(from) > 1 && (from[1] == '/' || from[1] == '\\') {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	if u.Path == LoginPath {
		return fallback
	}
	return from
}
