// Файл events.go — SSE-поток состояния Auth Context браузерной сессии.
// Каждый SSE-клиент обслуживается отдельной горутиной.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
)

// EventsHandler — SSE /events/auth.
type EventsHandler struct {
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler создаёт EventsHandler.
// heartbeat — интервал комментариев keep-alive (FP_SSE_HEARTBEAT).
func NewEventsHandler(heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "ui.events")),
	}
}

// authStateEvent — SSE-событие auth-state.
type authStateEvent struct {
	Loading         bool       `json:"loading"`
	Resolving       bool       `json:"resolving"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	User            *eventUser `json:"user"`
}

type eventUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Nome  string `json:"nome"`
	Tipo  string `json:"tipo"`
}

func eventFromSnapshot(s authctx.Snapshot) authStateEvent {
	ev := authStateEvent{
		Loading:         s.Loading,
		Resolving:       s.Resolving,
		IsAuthenticated: s.IsAuthenticated,
	}
	if s.User != nil {
		ev.User = &eventUser{
			ID:    s.User.ID,
			Email: s.User.Email,
			Nome:  s.User.Nome,
			Tipo:  string(s.User.Kind()),
		}
	}
	return ev
}

// HandleAuthEvents — GET /events/auth.
// Сразу отправляет текущее состояние, затем каждое изменение.
// Формат: event: auth-state\ndata: {json}\n\n
func (h *EventsHandler) HandleAuthEvents(w http.ResponseWriter, r *http.Request) {
	c := authctx.FromContext(r.Context())
	if c == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}
	// Поток живёт дольше WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})

	// Подписчик не должен блокировать публикацию: держим только последнее состояние.
	updates := make(chan authctx.Snapshot, 1)
	unsubscribe := c.Subscribe(func(s authctx.Snapshot) {
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	h.logger.Debug("SSE клиент подключён", slog.String("remote_addr", r.RemoteAddr))

	h.send(w, rc, c.Snapshot())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён", slog.String("remote_addr", r.RemoteAddr))
			return
		case s := <-updates:
			h.send(w, rc, s)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			_ = rc.Flush()
		}
	}
}

func (h *EventsHandler) send(w http.ResponseWriter, rc *http.ResponseController, s authctx.Snapshot) {
	data, err := json.Marshal(eventFromSnapshot(s))
	if err != nil {
		h.logger.Error("Ошибка сериализации auth-state", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "event: auth-state\ndata: %s\n\n", data)
	_ = rc.Flush()
}
