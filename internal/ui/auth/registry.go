package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
)

var (
	instancesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fp_app_instances_active",
		Help: "Количество активных экземпляров приложения (браузерных сессий) в памяти",
	})
	instanceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fp_app_instance_lookups_total",
		Help: "Поиск экземпляра приложения по браузерной сессии",
	}, []string{"result"})
)

// Opener создаёт запущенный Auth Context для ключа браузерной сессии.
// Реализуется *authctx.Factory.
type Opener interface {
	Open(ctx context.Context, key string) *authctx.Context
}

// Registry — реестр экземпляров приложения процесса: один Auth Context на
// браузерную сессию. Простаивающие экземпляры вытесняются по TTL или по
// размеру и останавливаются; сохранённая сессия при этом не удаляется.
type Registry struct {
	opener   Opener
	sessions *SessionManager
	logger   *slog.Logger

	mu    sync.Mutex
	cache *expirable.LRU[string, *authctx.Context]

	// closing — остановка вытесненных экземпляров
	closing sync.WaitGroup
}

// NewRegistry создаёт реестр. size — максимум экземпляров в памяти,
// idleTTL — время жизни экземпляра без запросов.
func NewRegistry(opener Opener, sessions *SessionManager, size int, idleTTL time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		opener:   opener,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "app_registry")),
	}
	r.cache = expirable.NewLRU[string, *authctx.Context](size, r.onEvict, idleTTL)
	return r
}

// Get возвращает экземпляр для браузерной сессии sid, создавая его при промахе.
// Каждое обращение продлевает время жизни экземпляра.
func (r *Registry) Get(ctx context.Context, sid string) *authctx.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache.Get(sid); ok {
		instanceLookupsTotal.WithLabelValues("hit").Inc()
		r.cache.Add(sid, c)
		return c
	}

	instanceLookupsTotal.WithLabelValues("miss").Inc()
	c := r.opener.Open(ctx, sid)
	r.cache.Add(sid, c)
	instancesActive.Inc()

	r.logger.Debug("Создан экземпляр приложения",
		slog.Int("instances", r.cache.Len()),
	)
	return c
}

// Len возвращает количество экземпляров в памяти.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close останавливает все экземпляры.
func (r *Registry) Close() {
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()
	r.closing.Wait()
}

// Middleware выдаёт браузерную сессию, если её нет, и помещает Auth Context
// экземпляра в контекст запроса.
func (r *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			bs, err := r.sessions.GetSessionFromRequest(req)
			if err != nil {
				r.logger.Debug("Некорректный cookie сессии, выдаём новый",
					slog.String("error", err.Error()),
					slog.String("remote_addr", req.RemoteAddr),
				)
				bs = nil
			}
			if bs == nil {
				bs = NewBrowserSession()
				if err := r.sessions.SetSessionCookie(w, bs); err != nil {
					r.logger.Error("Ошибка установки cookie сессии",
						slog.String("error", err.Error()),
					)
					http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
					return
				}
			}

			c := r.Get(req.Context(), bs.ID)
			c.Sync(req.Context())
			next.ServeHTTP(w, req.WithContext(authctx.WithContext(req.Context(), c)))
		})
	}
}

// onEvict вызывается LRU под его блокировкой; остановка выполняется в фоне.
func (r *Registry) onEvict(_ string, c *authctx.Context) {
	instancesActive.Dec()
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		c.Close()
	}()
}
