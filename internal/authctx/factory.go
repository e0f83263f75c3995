package authctx

import (
	"context"
	"log/slog"
	"time"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authsession"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
)

// Factory собирает экземпляр приложения: хранилище сессии, хук и контекст.
type Factory struct {
	Client          sessionstore.AuthClient
	Persister       sessionstore.Persister
	Resolver        authsession.UserResolver
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// Open создаёт и запускает Auth Context для ключа браузерной сессии.
// Начальная загрузка сессии идёт в фоне; Loading сбросится по её окончании.
func (f *Factory) Open(ctx context.Context, key string) *Context {
	logger := f.Logger.With(slog.String("instance", shortKey(key)))

	store := sessionstore.New(key, f.Client, f.Persister, logger)
	store.StartAutoRefresh(f.RefreshInterval)

	hook := authsession.New(store, f.Resolver, logger)
	hook.Start(ctx)

	return New(hook, store, logger)
}

// shortKey — префикс ключа для логов, сам ключ в логи не попадает.
func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
