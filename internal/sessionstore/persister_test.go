package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
)

func testSession(userID string) *model.Session {
	return &model.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		User:         model.SessionUser{ID: userID, Email: userID + "@example.com"},
	}
}

// exercisePersister проверяет общий контракт Persister.
func exercisePersister(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()

	got, err := p.Load(ctx, "missing")
	if err != nil {
		t.Fatalf("Load(missing) ошибка: %v", err)
	}
	if got != nil {
		t.Fatalf("Load(missing) = %+v, ожидали nil", got)
	}

	want := testSession("u1")
	if err := p.Save(ctx, "sid-1", want); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	got, err = p.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}
	if got == nil || got.RefreshToken != want.RefreshToken || got.User.ID != "u1" {
		t.Fatalf("Load() = %+v, ожидали %+v", got, want)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, ожидали %v", got.ExpiresAt, want.ExpiresAt)
	}

	if err := p.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	got, _ = p.Load(ctx, "sid-1")
	if got != nil {
		t.Errorf("после Delete() сессия всё ещё есть: %+v", got)
	}
}

func TestMemoryPersister(t *testing.T) {
	p := NewMemoryPersister()
	exercisePersister(t, p)

	if p.Len() != 0 {
		t.Errorf("Len() = %d, ожидали 0", p.Len())
	}
}

// TestMemoryPersister_Copy проверяет, что изменение возвращённой сессии
// не меняет сохранённую.
func TestMemoryPersister_Copy(t *testing.T) {
	p := NewMemoryPersister()
	ctx := context.Background()
	_ = p.Save(ctx, "sid", testSession("u1"))

	got, _ := p.Load(ctx, "sid")
	got.AccessToken = "changed"

	again, _ := p.Load(ctx, "sid")
	if again.AccessToken != "access-u1" {
		t.Errorf("AccessToken = %q, сохранённая сессия изменилась", again.AccessToken)
	}
}

// TestRedisPersister проверяет persister на реальном Redis в контейнере.
func TestRedisPersister(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Не удалось получить адрес контейнера: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	p := NewRedisPersister(client, time.Hour)
	exercisePersister(t, p)

	if status, msg := p.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %s (%s)", status, msg)
	}

	// TTL выставляется на запись
	_ = p.Save(ctx, "sid-ttl", testSession("u2"))
	ttl, err := client.TTL(ctx, DefaultRedisPrefix+"sid-ttl").Result()
	if err != nil {
		t.Fatalf("TTL() ошибка: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, ожидали (0, 1h]", ttl)
	}

	// Повреждённая запись читается как отсутствие сессии
	_ = client.Set(ctx, DefaultRedisPrefix+"broken", "not json", time.Minute).Err()
	got, err := p.Load(ctx, "broken")
	if err != nil || got != nil {
		t.Errorf("Load(broken) = %+v, %v; ожидали nil, nil", got, err)
	}
}
