package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
)

// Persister — хранилище набора токенов между запросами и рестартами экземпляра.
// Load возвращает nil, nil, если сессия не сохранена.
type Persister interface {
	Load(ctx context.Context, key string) (*model.Session, error)
	Save(ctx context.Context, key string, session *model.Session) error
	Delete(ctx context.Context, key string) error
}

// RedisPersister хранит сессии в Redis в виде JSON.
// Подходит для нескольких реплик портала за балансировщиком: Store сверяется
// с сохранённой копией при каждом GetSession.
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisPrefix — префикс ключей сессий в Redis.
const DefaultRedisPrefix = "fp:session:"

// NewRedisPersister создаёт persister поверх go-redis клиента.
// ttl — сколько хранить сессию без обновления (обычно совпадает с max-age cookie).
func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
	}
}

func (p *RedisPersister) key(key string) string {
	return p.prefix + key
}

func (p *RedisPersister) Load(ctx context.Context, key string) (*model.Session, error) {
	data, err := p.client.Get(ctx, p.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение сессии из Redis: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Повреждённая запись равносильна отсутствию сессии
		_ = p.client.Del(ctx, p.key(key)).Err()
		return nil, nil
	}
	return &session, nil
}

func (p *RedisPersister) Save(ctx context.Context, key string, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("сериализация сессии: %w", err)
	}
	if err := p.client.Set(ctx, p.key(key), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("запись сессии в Redis: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, p.key(key)).Err(); err != nil {
		return fmt.Errorf("удаление сессии из Redis: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность Redis (ReadinessChecker).
func (p *RedisPersister) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}

// MemoryPersister хранит сессии в памяти процесса.
// Используется, когда Redis не настроен, и в тестах.
type MemoryPersister struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemoryPersister создаёт пустой in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{sessions: make(map[string]model.Session)}
}

func (p *MemoryPersister) Load(_ context.Context, key string) (*model.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (p *MemoryPersister) Save(_ context.Context, key string, session *model.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sessions[key] = *session
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sessions, key)
	return nil
}

// Len возвращает число сохранённых сессий.
func (p *MemoryPersister) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
