// seed.go — заполнение таблиц ролей из YAML-файла (локальная разработка).
//
// Формат файла:
//
//	roles:
//	  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
//	    role: aluno
//	    nome: Maria
//	    email: maria@example.com
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
)

// seedFile — корень YAML-файла.
type seedFile struct {
	Roles []model.RoleRecord `yaml:"roles"`
}

// Seeder записывает строки ролей в БД.
type Seeder struct {
	repo     repository.RoleRepository
	tx       *repository.TxRunner
	validate *validator.Validate
	logger   *slog.Logger
}

// NewSeeder создаёт Seeder. tx может быть nil — тогда записи выполняются
// без общей транзакции.
func NewSeeder(repo repository.RoleRepository, tx *repository.TxRunner, logger *slog.Logger) *Seeder {
	return &Seeder{
		repo:     repo,
		tx:       tx,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "seeder")),
	}
}

// ParseSeed читает и валидирует YAML. Ошибки всех записей собираются в одну.
func (s *Seeder) ParseSeed(r io.Reader) ([]model.RoleRecord, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: разбор YAML: %v", ErrValidation, err)
	}

	var problems []string
	seen := make(map[string]model.RoleKind, len(f.Roles))
	for i := range f.Roles {
		rec := &f.Roles[i]
		rec.UserID = strings.TrimSpace(rec.UserID)

		if err := s.validate.Struct(rec); err != nil {
			problems = append(problems, fmt.Sprintf("запись %d: %s", i+1, describeValidation(err)))
			continue
		}
		if prev, dup := seen[rec.UserID]; dup {
			// В одной таблице роли на пользователя не более одной строки
			if prev == rec.Kind {
				problems = append(problems, fmt.Sprintf("запись %d: повтор %s/%s", i+1, rec.Kind, rec.UserID))
				continue
			}
			s.logger.Warn("Пользователь указан в нескольких ролях, действует порядок professor > aluno > admin",
				slog.String("user_id", rec.UserID),
			)
		}
		seen[rec.UserID] = rec.Kind
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return f.Roles, nil
}

// Apply записывает строки ролей (upsert). При наличии TxRunner все записи
// выполняются в одной транзакции.
func (s *Seeder) Apply(ctx context.Context, records []model.RoleRecord) error {
	write := func(repo repository.RoleRepository) error {
		for i := range records {
			if err := repo.Upsert(ctx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if s.tx == nil {
		if err := write(s.repo); err != nil {
			return err
		}
	} else {
		err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			return write(repository.NewRoleRepository(tx))
		})
		if err != nil {
			return err
		}
	}

	s.logger.Info("Таблицы ролей заполнены", slog.Int("records", len(records)))
	return nil
}

// describeValidation превращает ошибки validator в короткий текст.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: нарушено правило %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
