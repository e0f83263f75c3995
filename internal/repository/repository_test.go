package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/config"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/database"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("fitportal_test"),
		postgres.WithUsername("fitportal"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("FP_DB_HOST", host)
	t.Setenv("FP_DB_PORT", port.Port())
	t.Setenv("FP_DB_NAME", "fitportal_test")
	t.Setenv("FP_DB_USER", "fitportal")
	t.Setenv("FP_DB_PASSWORD", "test-password")
	t.Setenv("FP_DB_SSL_MODE", "disable")
	t.Setenv("FP_AUTH_URL", "http://localhost:9999")
	t.Setenv("FP_AUTH_API_KEY", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты RoleRepository ---

func TestRoleRepository_ExistsAndName(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRoleRepository(pool)

	alunoID := uuid.New().String()
	if err := repo.Upsert(ctx, &model.RoleRecord{
		UserID: alunoID, Kind: model.KindAluno, Nome: "Maria", Email: "maria@example.com",
	}); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	// Строка есть только в aluno_profiles
	for _, tc := range []struct {
		kind model.RoleKind
		want bool
	}{
		{model.KindProfessor, false},
		{model.KindAluno, true},
		{model.KindAdmin, false},
	} {
		got, err := repo.Exists(ctx, tc.kind, alunoID)
		if err != nil {
			t.Fatalf("Exists(%s) ошибка: %v", tc.kind, err)
		}
		if got != tc.want {
			t.Errorf("Exists(%s) = %v, хотели %v", tc.kind, got, tc.want)
		}
	}

	nome, err := repo.DisplayName(ctx, model.KindAluno, alunoID)
	if err != nil {
		t.Fatalf("DisplayName() ошибка: %v", err)
	}
	if nome != "Maria" {
		t.Errorf("DisplayName() = %q, хотели Maria", nome)
	}

	// Повторный upsert обновляет имя
	if err := repo.Upsert(ctx, &model.RoleRecord{
		UserID: alunoID, Kind: model.KindAluno, Nome: "Maria Silva",
	}); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}
	nome, _ = repo.DisplayName(ctx, model.KindAluno, alunoID)
	if nome != "Maria Silva" {
		t.Errorf("DisplayName() после upsert = %q", nome)
	}

	// Отсутствующий пользователь
	if _, err := repo.DisplayName(ctx, model.KindAdmin, alunoID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DisplayName() для отсутствующей строки: %v, хотели ErrNotFound", err)
	}

	// Неизвестная роль
	if _, err := repo.Exists(ctx, model.KindUnknown, alunoID); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Exists(unknown): %v, хотели ErrUnknownRole", err)
	}
}

func TestRoleRepository_ProfessorProfile(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRoleRepository(pool)

	profID := uuid.New().String()
	rec := &model.RoleRecord{
		UserID:        profID,
		Kind:          model.KindProfessor,
		Nome:          "Carla",
		Email:         "carla@example.com",
		Bio:           "Treinadora funcional",
		FotoURL:       "avatars/carla.jpg",
		Especialidade: "Funcional",
		CREF:          "012345-G/SP",
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	p, err := repo.GetProfessorProfile(ctx, profID)
	if err != nil {
		t.Fatalf("GetProfessorProfile() ошибка: %v", err)
	}
	if p.Nome != "Carla" || p.Especialidade != "Funcional" || p.FotoURL != "avatars/carla.jpg" {
		t.Errorf("профиль = %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	if _, err := repo.GetProfessorProfile(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfessorProfile() для отсутствующего: %v, хотели ErrNotFound", err)
	}

	// Delete
	if err := repo.Delete(ctx, model.KindProfessor, profID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, model.KindProfessor, profID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete(): %v, хотели ErrNotFound", err)
	}
}

func TestTxRunner_RollbackOnError(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	adminID := uuid.New().String()
	errBoom := errors.New("boom")

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewRoleRepository(tx).Upsert(ctx, &model.RoleRecord{
			UserID: adminID, Kind: model.KindAdmin, Nome: "Root",
		}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("RunInTx() = %v, хотели errBoom", err)
	}

	exists, err := NewRoleRepository(pool).Exists(ctx, model.KindAdmin, adminID)
	if err != nil {
		t.Fatalf("Exists() ошибка: %v", err)
	}
	if exists {
		t.Error("строка admin_users сохранилась после отката транзакции")
	}
}
