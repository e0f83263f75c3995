// Пакет authsession — связывает хранилище сессии и Role Resolver в одно
// реактивное состояние {User, Session, Loading}.
//
// Каждое событие сессии получает номер поколения. Результат разрешения
// публикуется, только если его поколение всё ещё последнее, поэтому
// итоговое состояние соответствует последнему начатому событию, а не
// последнему завершившемуся.
package authsession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
)

const tracerName = "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authsession"

var (
	authEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fp_auth_events_total",
			Help: "Количество событий сессии, полученных хуком",
		},
		[]string{"event"},
	)
	staleResolutionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fp_auth_stale_resolutions_total",
			Help: "Количество отброшенных устаревших разрешений пользователя",
		},
	)
)

// SessionSource — хранилище сессии. Реализуется *sessionstore.Store.
type SessionSource interface {
	GetSession(ctx context.Context) (*model.Session, error)
	OnAuthStateChange(h sessionstore.Handler) *sessionstore.Subscription
}

// UserResolver строит AuthUser по идентичности сессии.
// Реализуется *service.Resolver.
type UserResolver interface {
	Resolve(ctx context.Context, userID, email string) *model.AuthUser
}

// State — опубликованное состояние аутентификации.
type State struct {
	User    *model.AuthUser
	Session *model.Session
	// Loading — начальная загрузка сессии ещё не завершена
	Loading bool
	// Resolving — для новой сессии ещё разрешается пользователь
	Resolving bool
}

// Settled сообщает, что состояние окончательное для текущей сессии.
func (s State) Settled() bool {
	return !s.Loading && !s.Resolving
}

// Hook — Auth Session Hook одного экземпляра приложения.
type Hook struct {
	store    SessionSource
	resolver UserResolver
	logger   *slog.Logger
	tracer   trace.Tracer

	gen atomic.Uint64

	// publishMu держится от записи состояния до конца рассылки:
	// получатели видят состояния в том же порядке, в каком они записаны
	publishMu sync.Mutex

	mu      sync.RWMutex
	state   State
	stopped bool

	readyOnce sync.Once
	ready     chan struct{}

	listenersMu sync.RWMutex
	listeners   map[uint64]func(State)
	nextID      uint64

	startOnce sync.Once
	stopOnce  sync.Once
	sub       *sessionstore.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New создаёт хук в состоянии Loading.
func New(store SessionSource, resolver UserResolver, logger *slog.Logger) *Hook {
	return &Hook{
		store:     store,
		resolver:  resolver,
		logger:    logger.With(slog.String("component", "auth_session")),
		tracer:    otel.Tracer(tracerName),
		state:     State{Loading: true},
		ready:     make(chan struct{}),
		listeners: make(map[uint64]func(State)),
	}
}

// Start подписывается на события хранилища и запускает начальную загрузку
// сессии в фоне. Повторный вызов ничего не делает.
func (h *Hook) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		h.ctx, h.cancel = context.WithCancel(context.WithoutCancel(ctx))
		h.sub = h.store.OnAuthStateChange(h.onEvent)

		g := h.gen.Add(1)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.bootstrap(g)
		}()
	})
}

// Stop отписывается от хранилища, отменяет незавершённые разрешения и
// ждёт их завершения. После Stop состояние больше не меняется.
func (h *Hook) Stop() {
	h.stopOnce.Do(func() {
		if h.sub != nil {
			h.sub.Unsubscribe()
		}
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		h.gen.Add(1)
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()
	})
}

// State возвращает копию текущего состояния.
func (h *Hook) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Ready закрывается, когда Loading становится false.
func (h *Hook) Ready() <-chan struct{} {
	return h.ready
}

// Subscribe регистрирует получателя состояния. fn вызывается синхронно
// в публикующей горутине и не должен блокироваться или менять сессию.
func (h *Hook) Subscribe(fn func(State)) (unsubscribe func()) {
	h.listenersMu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	h.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.listenersMu.Lock()
			delete(h.listeners, id)
			h.listenersMu.Unlock()
		})
	}
}

// WaitFor ждёт состояния, удовлетворяющего pred, или отмены ctx.
// Возвращает последнее состояние и признак успеха.
func (h *Hook) WaitFor(ctx context.Context, pred func(State) bool) (State, bool) {
	ch := make(chan State, 1)
	unsubscribe := h.Subscribe(func(s State) {
		if pred(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if s := h.State(); pred(s) {
		return s, true
	}
	select {
	case s := <-ch:
		return s, true
	case <-ctx.Done():
		return h.State(), false
	}
}

func (h *Hook) bootstrap(g uint64) {
	session, err := h.store.GetSession(h.ctx)
	if err != nil {
		h.logger.Warn("Не удалось получить сессию при старте",
			slog.String("error", err.Error()),
		)
		h.publish(g, nil, nil, false)
		return
	}
	authEventsTotal.WithLabelValues(string(model.EventInitialSession)).Inc()
	h.resolveAndPublish(g, session)
}

// onEvent вызывается хранилищем синхронно. Выход публикуется сразу,
// разрешение пользователя для новой сессии выполняется в фоне.
func (h *Hook) onEvent(event model.AuthEvent, session *model.Session) {
	authEventsTotal.WithLabelValues(string(event)).Inc()
	g := h.gen.Add(1)

	h.logger.Debug("Событие сессии",
		slog.String("event", string(event)),
		slog.Uint64("generation", g),
	)

	if session == nil {
		h.publish(g, nil, nil, false)
		return
	}

	h.publishPending(g, session)

	h.mu.RLock()
	if h.stopped {
		h.mu.RUnlock()
		return
	}
	h.wg.Add(1)
	h.mu.RUnlock()
	go func() {
		defer h.wg.Done()
		h.resolveAndPublish(g, session)
	}()
}

func (h *Hook) resolveAndPublish(g uint64, session *model.Session) {
	if session == nil {
		h.publish(g, nil, nil, false)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Паника при разрешении пользователя",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("user_id", session.User.ID),
			)
			h.publish(g, nil, nil, false)
		}
	}()

	ctx, span := h.tracer.Start(h.ctx, "ResolveSession",
		trace.WithAttributes(
			attribute.String("user.id", session.User.ID),
			attribute.Int64("generation", int64(g)),
		))
	defer span.End()

	user := h.resolver.Resolve(ctx, session.User.ID, session.User.Email)
	published := h.publish(g, user, session, false)
	span.SetAttributes(attribute.Bool("published", published))
	if !published {
		staleResolutionsTotal.Inc()
		h.logger.Debug("Устаревшее разрешение пользователя отброшено",
			slog.Uint64("generation", g),
			slog.String("user_id", session.User.ID),
		)
	}
}

// publishPending публикует новую сессию до завершения разрешения.
// Пользователь сохраняется, только если сессия принадлежит ему же.
func (h *Hook) publishPending(g uint64, session *model.Session) {
	h.mu.RLock()
	prev := h.state.User
	h.mu.RUnlock()

	var keep *model.AuthUser
	if prev != nil && prev.ID == session.User.ID {
		keep = prev
	}
	h.publish(g, keep, session, true)
}

// publish записывает состояние, если поколение g всё ещё последнее,
// и рассылает его. Запись и рассылка выполняются под publishMu, поэтому
// последний полученный слушателем снимок совпадает с State().
func (h *Hook) publish(g uint64, user *model.AuthUser, session *model.Session, resolving bool) bool {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	if h.stopped || g != h.gen.Load() {
		h.mu.Unlock()
		return false
	}
	loading := h.state.Loading && resolving
	h.state = State{
		User:      user,
		Session:   session,
		Loading:   loading,
		Resolving: resolving,
	}
	snapshot := h.state
	h.mu.Unlock()

	if !loading {
		h.readyOnce.Do(func() { close(h.ready) })
	}
	h.notify(snapshot)
	return true
}

func (h *Hook) notify(s State) {
	h.listenersMu.RLock()
	fns := make([]func(State), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}
