// Пакет authctx — Auth Context: единственная точка доступа к состоянию
// аутентификации экземпляра приложения и к действиям login/logout.
// Состояние меняет только подписка хука на хранилище сессии; Login и
// Logout лишь делегируют хранилищу.
package authctx

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authsession"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
)

// Store — действия хранилища сессии, нужные контексту.
// Реализуется *sessionstore.Store.
type Store interface {
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	Close()
}

// Snapshot — значение Auth Context в момент чтения.
type Snapshot struct {
	User    *model.AuthUser
	Session *model.Session
	Loading bool
	// Resolving — пользователь для текущей сессии ещё разрешается
	Resolving bool
	// IsAuthenticated — есть сессия (Session != nil)
	IsAuthenticated bool
}

// Settled сообщает, что начальная загрузка и разрешение пользователя завершены.
func (s Snapshot) Settled() bool {
	return !s.Loading && !s.Resolving
}

// Kind возвращает роль пользователя (unknown без пользователя).
func (s Snapshot) Kind() model.RoleKind {
	return s.User.Kind()
}

func snapshotOf(st authsession.State) Snapshot {
	return Snapshot{
		User:            st.User,
		Session:         st.Session,
		Loading:         st.Loading,
		Resolving:       st.Resolving,
		IsAuthenticated: st.Session != nil,
	}
}

// LoginErrorKind — категория ошибки входа.
type LoginErrorKind string

const (
	LoginInvalidCredentials LoginErrorKind = "invalid_credentials"
	LoginValidation         LoginErrorKind = "validation"
	LoginNetwork            LoginErrorKind = "network"
	LoginUnknown            LoginErrorKind = "unknown"
)

// LoginError — структурированная ошибка входа для показа в форме.
type LoginError struct {
	Kind    LoginErrorKind
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Context — Auth Context одного экземпляра приложения.
type Context struct {
	hook   *authsession.Hook
	store  Store
	logger *slog.Logger
}

// New создаёт контекст поверх запущенного хука.
func New(hook *authsession.Hook, store Store, logger *slog.Logger) *Context {
	return &Context{
		hook:   hook,
		store:  store,
		logger: logger.With(slog.String("component", "auth_context")),
	}
}

// Snapshot возвращает текущее значение контекста.
func (c *Context) Snapshot() Snapshot {
	return snapshotOf(c.hook.State())
}

// Login выполняет вход. Ошибка возвращается значением, а не паникой;
// nil означает успех. Состояние обновит подписка хука.
func (c *Context) Login(ctx context.Context, email, password string) *LoginError {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return &LoginError{Kind: LoginValidation, Message: "email и пароль обязательны"}
	}

	if _, err := c.store.SignInWithPassword(ctx, email, password); err != nil {
		lerr := ClassifyLoginError(err)
		c.logger.Info("Вход отклонён",
			slog.String("kind", string(lerr.Kind)),
			slog.String("error", err.Error()),
		)
		return lerr
	}
	return nil
}

// Logout выполняет выход. К моменту возврата Snapshot уже не содержит
// пользователя: хранилище публикует SIGNED_OUT синхронно.
func (c *Context) Logout(ctx context.Context) error {
	return c.store.SignOut(ctx)
}

// Sync сверяет сессию с сохранённой копией. Выход или вход, выполненный
// другой репликой, публикуется до возврата, поэтому следующий Snapshot
// его уже отражает. Ошибка чтения не прерывает запрос: остаётся текущее
// состояние.
func (c *Context) Sync(ctx context.Context) {
	if _, err := c.store.GetSession(ctx); err != nil {
		c.logger.Warn("Не удалось сверить сессию",
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe регистрирует получателя снимков состояния.
func (c *Context) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return c.hook.Subscribe(func(st authsession.State) {
		fn(snapshotOf(st))
	})
}

// WaitReady ждёт окончания начальной загрузки или отмены ctx.
func (c *Context) WaitReady(ctx context.Context) (Snapshot, bool) {
	st, ok := c.hook.WaitFor(ctx, func(s authsession.State) bool { return !s.Loading })
	return snapshotOf(st), ok
}

// WaitSettled ждёт, пока пользователь для текущей сессии будет разрешён.
func (c *Context) WaitSettled(ctx context.Context) (Snapshot, bool) {
	st, ok := c.hook.WaitFor(ctx, authsession.State.Settled)
	return snapshotOf(st), ok
}

// Close останавливает хук и фоновое обновление токенов.
// Сохранённая сессия остаётся в хранилище.
func (c *Context) Close() {
	c.hook.Stop()
	c.store.Close()
}

// ClassifyLoginError сводит ошибку auth-сервиса к категории LoginError.
func ClassifyLoginError(err error) *LoginError {
	switch {
	case errors.Is(err, gotrue.ErrInvalidCredentials):
		return &LoginError{Kind: LoginInvalidCredentials, Message: "неверный email или пароль", Err: err}
	case errors.Is(err, gotrue.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return &LoginError{Kind: LoginNetwork, Message: "сервис аутентификации недоступен", Err: err}
	default:
		var apiErr *gotrue.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == 400 || apiErr.Status == 422) {
			return &LoginError{Kind: LoginValidation, Message: apiErr.Message, Err: err}
		}
		return &LoginError{Kind: LoginUnknown, Message: "не удалось выполнить вход", Err: err}
	}
}

type ctxKey struct{}

// WithContext помещает Auth Context в context.Context запроса.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext извлекает Auth Context. nil, если его нет.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(ctxKey{}).(*Context)
	return c
}
