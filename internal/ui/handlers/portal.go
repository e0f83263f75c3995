package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/rbac"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/pages"
	uimiddleware "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/middleware"
)

// PortalHandler — стартовые страницы порталов ролей.
type PortalHandler struct {
	settleWait time.Duration
	logger     *slog.Logger
}

// NewPortalHandler создаёт PortalHandler.
func NewPortalHandler(settleWait time.Duration, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{
		settleWait: settleWait,
		logger:     logger.With(slog.String("component", "ui_portal")),
	}
}

// HandleHome — GET /: переход на портал роли пользователя.
// Маршрут под ProtectedRoute.
func (h *PortalHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.settled(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, rbac.HomePath(snap.Kind()), http.StatusFound)
}

// HandlePortal — GET /professor, /aluno, /admin. Доступ уже проверен охраной.
func (h *PortalHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.settled(w, r)
	if !ok {
		return
	}
	h.renderPage(w, r, pages.Portal(snap.User))
}

// HandlePending — GET /pending: пользователь без роли.
func (h *PortalHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.settled(w, r)
	if !ok {
		return
	}
	if snap.User != nil && rbac.IsValidKind(snap.Kind()) {
		http.Redirect(w, r, rbac.HomePath(snap.Kind()), http.StatusFound)
		return
	}
	h.renderPage(w, r, pages.Pending(snap.User))
}

// settled ждёт разрешения пользователя; при таймауте отдаёт заглушку.
func (h *PortalHandler) settled(w http.ResponseWriter, r *http.Request) (authctx.Snapshot, bool) {
	c := authctx.FromContext(r.Context())
	if c == nil {
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return authctx.Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.settleWait)
	defer cancel()

	snap, ok := c.WaitSettled(ctx)
	switch {
	case !ok:
		h.renderPage(w, r, pages.Loading(1))
		return snap, false
	case snap.User == nil:
		http.Redirect(w, r, uimiddleware.LoginURL(r.URL.RequestURI()), http.StatusFound)
		return snap, false
	}
	return snap, true
}

func (h *PortalHandler) renderPage(w http.ResponseWriter, r *http.Request, page templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if err := page.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}
