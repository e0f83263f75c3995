// Пакет sessionstore — хранилище сессии одного экземпляра приложения.
// Держит набор токенов, сохраняет его через Persister, обновляет токены
// автоматически и рассылает события изменения сессии подписчикам.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
)

// AuthClient — операции auth-сервиса, нужные хранилищу.
// Реализуется *gotrue.Client.
type AuthClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*gotrue.TokenResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*gotrue.TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Handler получает событие и новую сессию (nil после SIGNED_OUT).
// Вызывается синхронно в горутине, породившей событие.
type Handler func(event model.AuthEvent, session *model.Session)

// Subscription — активная подписка на события хранилища.
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Unsubscribe отменяет подписку. Повторный вызов безопасен.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.subsMu.Lock()
		delete(s.store.subs, s.id)
		s.store.subsMu.Unlock()
	})
}

// Store — хранилище сессии одного экземпляра приложения (одного браузера).
type Store struct {
	key       string
	client    AuthClient
	persister Persister
	logger    *slog.Logger
	now       func() time.Time

	// mu защищает session и version; операции Persister выполняются под ним,
	// чтобы память и сохранённая копия менялись в одном порядке
	mu      sync.Mutex
	session *model.Session
	loaded  bool
	// version растёт при каждой смене сессии (вход, обновление, выход)
	version uint64

	// refreshMu сериализует обновление: refresh token одноразовый
	refreshMu sync.Mutex

	// emitMu упорядочивает рассылку: событие старше уже разосланного отбрасывается
	emitMu  sync.Mutex
	emitted uint64

	subsMu sync.RWMutex
	subs   map[uint64]Handler
	nextID uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New создаёт хранилище для ключа key (идентификатор браузерной сессии).
func New(key string, client AuthClient, persister Persister, logger *slog.Logger) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	return &Store{
		key:       key,
		client:    client,
		persister: persister,
		logger:    logger.With(slog.String("component", "session_store")),
		now:       time.Now,
		subs:      make(map[uint64]Handler),
		stopCh:    make(chan struct{}),
	}
}

// OnAuthStateChange регистрирует обработчик событий сессии.
func (s *Store) OnAuthStateChange(h Handler) *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextID++
	s.subs[s.nextID] = h
	return &Subscription{store: s, id: s.nextID}
}

// GetSession возвращает текущую сессию. Каждый вызов сверяется с Persister:
// вход или выход, выполненный другой репликой с тем же ключом, принимается
// и публикуется событием. Истёкшая сессия обновляется; отозванная удаляется
// с событием SIGNED_OUT.
func (s *Store) GetSession(ctx context.Context) (*model.Session, error) {
	current, _, err := s.sync(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if !s.expired(current) {
		return current, nil
	}
	return s.refresh(ctx, current)
}

// SignInWithPassword выполняет вход и публикует SIGNED_IN.
// Вход заменяет любую сессию, включая обновлённую параллельно.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	session := sessionFromToken(resp, s.now())
	version := s.replace(ctx, session)

	s.logger.Info("Вход выполнен",
		slog.String("user_id", session.User.ID),
	)
	s.emit(version, model.EventSignedIn, session)
	return session, nil
}

// SignOut отзывает сессию в auth-сервисе и всегда очищает локальное состояние.
// SIGNED_OUT публикуется до возврата, поэтому подписчики видят выход
// раньше вызывающего. Обновление токена, завершившееся после выхода,
// отбрасывается. Возвращается ошибка удалённого вызова, если она была.
func (s *Store) SignOut(ctx context.Context) error {
	current, _, loadErr := s.sync(ctx)
	if loadErr != nil {
		s.logger.Warn("Не удалось прочитать сессию при выходе",
			slog.String("error", loadErr.Error()),
		)
	}

	var remoteErr error
	if current != nil && current.AccessToken != "" {
		remoteErr = s.client.SignOut(ctx, current.AccessToken)
		if remoteErr != nil {
			s.logger.Warn("Ошибка logout в auth-сервисе",
				slog.String("error", remoteErr.Error()),
			)
		}
	}

	version := s.replace(ctx, nil)
	s.emit(version, model.EventSignedOut, nil)
	return remoteErr
}

// StartAutoRefresh запускает фоновое обновление токенов.
// Проверка выполняется каждые interval; токен обновляется, если истекает
// раньше следующей проверки.
func (s *Store) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.refreshIfDue(interval)
			}
		}
	}()
}

// Close останавливает фоновое обновление. Сохранённая сессия не удаляется.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Store) refreshIfDue(window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	current, _, err := s.sync(ctx)
	if err != nil {
		s.logger.Warn("Не удалось прочитать сохранённую сессию",
			slog.String("error", err.Error()),
		)
		return
	}
	if current == nil || current.ExpiresAt.After(s.now().Add(window+time.Minute)) {
		return
	}

	if _, err := s.refresh(ctx, current); err != nil {
		s.logger.Warn("Фоновое обновление токена не удалось",
			slog.String("error", err.Error()),
		)
	}
}

// refresh обменивает refresh token. Если сессию уже обновили параллельно
// (в этом экземпляре или на другой реплике), возвращает актуальную без запроса.
// Ответ auth-сервиса применяется, только если за время запроса сессию никто
// не менял: выход или новый вход побеждают начатое раньше обновление.
func (s *Store) refresh(ctx context.Context, stale *model.Session) (*model.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	current, version, err := s.sync(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if current.RefreshToken != stale.RefreshToken && !s.expired(current) {
		return current, nil
	}

	resp, err := s.client.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, gotrue.ErrSessionInvalid) || errors.Is(err, gotrue.ErrInvalidCredentials) {
			next, ok := s.replaceIf(ctx, nil, version)
			if !ok {
				return s.current(), nil
			}
			s.logger.Info("Refresh token недействителен, сессия завершена",
				slog.String("user_id", current.User.ID),
			)
			s.emit(next, model.EventSignedOut, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("обновление сессии: %w", err)
	}

	session := sessionFromToken(resp, s.now())
	if session.User.ID == "" {
		session.User = current.User
	}

	next, ok := s.replaceIf(ctx, session, version)
	if !ok {
		s.logger.Debug("Обновление токена отброшено: сессия изменилась во время запроса",
			slog.String("user_id", current.User.ID),
		)
		return s.current(), nil
	}

	s.logger.Debug("Токен обновлён",
		slog.String("user_id", session.User.ID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	s.emit(next, model.EventTokenRefreshed, session)
	return session, nil
}

// sync читает сохранённую сессию и сверяет её с копией в памяти.
// Отличие означает, что сессию сменил другой экземпляр с тем же ключом:
// копия заменяется, подписчики получают соответствующее событие.
// Если Persister недоступен после первой загрузки, используется копия в памяти.
func (s *Store) sync(ctx context.Context) (*model.Session, uint64, error) {
	s.mu.Lock()
	stored, err := s.persister.Load(ctx, s.key)
	if err != nil {
		if !s.loaded {
			s.mu.Unlock()
			return nil, 0, err
		}
		current, version := s.session, s.version
		s.mu.Unlock()
		s.logger.Warn("Persister недоступен, используется сессия из памяти",
			slog.String("error", err.Error()),
		)
		return current, version, nil
	}

	if !s.loaded {
		s.session = stored
		s.loaded = true
		version := s.version
		s.mu.Unlock()
		return stored, version, nil
	}

	if sameBundle(s.session, stored) {
		current, version := s.session, s.version
		s.mu.Unlock()
		return current, version, nil
	}

	event := externalEvent(s.session, stored)
	s.session = stored
	s.version++
	version := s.version
	s.mu.Unlock()

	s.logger.Info("Сессия изменена другим экземпляром",
		slog.String("event", string(event)),
	)
	s.emit(version, event, stored)
	return stored, version, nil
}

// replace безусловно записывает сессию (nil удаляет её) и возвращает новую версию.
func (s *Store) replace(ctx context.Context, session *model.Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, session)
}

// replaceIf записывает сессию, только если версия всё ещё равна expect.
func (s *Store) replaceIf(ctx context.Context, session *model.Session, expect uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != expect {
		return s.version, false
	}
	return s.write(ctx, session), true
}

// write вызывается под s.mu.
func (s *Store) write(ctx context.Context, session *model.Session) uint64 {
	s.session = session
	s.loaded = true
	s.version++

	if session == nil {
		if err := s.persister.Delete(ctx, s.key); err != nil {
			s.logger.Warn("Не удалось удалить сохранённую сессию",
				slog.String("error", err.Error()),
			)
		}
		return s.version
	}
	if err := s.persister.Save(ctx, s.key, session); err != nil {
		s.logger.Warn("Не удалось сохранить сессию",
			slog.String("error", err.Error()),
		)
	}
	return s.version
}

func (s *Store) current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// emit рассылает событие версии version. Рассылки упорядочены: событие,
// версия которого старше уже разосланного, отбрасывается. Обработчики
// вызываются вне блокировки списка подписчиков и могут отписаться изнутри,
// но не должны менять сессию этого же хранилища.
func (s *Store) emit(version uint64, event model.AuthEvent, session *model.Session) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if version < s.emitted {
		s.logger.Debug("Устаревшее событие сессии отброшено",
			slog.String("event", string(event)),
		)
		return
	}
	s.emitted = version

	s.subsMu.RLock()
	handlers := make([]Handler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subsMu.RUnlock()

	for _, h := range handlers {
		h(event, session)
	}
}

func (s *Store) expired(session *model.Session) bool {
	return !s.now().Add(30 * time.Second).Before(session.ExpiresAt)
}

// sameBundle сравнивает наборы токенов по содержимому.
func sameBundle(a, b *model.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken
}

// externalEvent выбирает событие для сессии, сменённой другим экземпляром.
func externalEvent(prev, next *model.Session) model.AuthEvent {
	switch {
	case next == nil:
		return model.EventSignedOut
	case prev != nil && prev.User.ID == next.User.ID:
		return model.EventTokenRefreshed
	default:
		return model.EventSignedIn
	}
}

func sessionFromToken(resp *gotrue.TokenResponse, now time.Time) *model.Session {
	return &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    resp.Expiry(now),
		User: model.SessionUser{
			ID:    resp.User.ID,
			Email: resp.User.Email,
		},
	}
}
