package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/rbac"
)

// RoleRepository — доступ к таблицам ролей professor_profiles, aluno_profiles, admin_users.
// Каждая таблица содержит не более одной строки на user_id.
type RoleRepository interface {
	// Exists проверяет наличие строки пользователя в таблице роли.
	Exists(ctx context.Context, kind model.RoleKind, userID string) (bool, error)
	// DisplayName возвращает колонку nome. ErrNotFound, если строки нет.
	DisplayName(ctx context.Context, kind model.RoleKind, userID string) (string, error)
	// GetProfessorProfile возвращает расширенный профиль преподавателя.
	GetProfessorProfile(ctx context.Context, userID string) (*model.ExtendedProfile, error)
	// Upsert создаёт или обновляет строку роли (seed, CLI).
	Upsert(ctx context.Context, rec *model.RoleRecord) error
	// Delete удаляет строку пользователя из таблицы роли.
	Delete(ctx context.Context, kind model.RoleKind, userID string) error
}

// roleRepo — реализация RoleRepository.
type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий таблиц ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

// tableFor возвращает имя таблицы. Имена берутся только из rbac,
// поэтому подстановка в SQL безопасна.
func tableFor(kind model.RoleKind) (string, error) {
	table := rbac.TableFor(kind)
	if table == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, kind)
	}
	return table, nil
}

func (r *roleRepo) Exists(ctx context.Context, kind model.RoleKind, userID string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1)`, table)

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки %s: %w", table, err)
	}
	return exists, nil
}

func (r *roleRepo) DisplayName(ctx context.Context, kind model.RoleKind, userID string) (string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT nome FROM %s WHERE user_id = $1`, table)

	var nome string
	if err := r.db.QueryRow(ctx, query, userID).Scan(&nome); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка получения имени из %s: %w", table, err)
	}
	return nome, nil
}

const professorColumns = `user_id, nome, email, telefone, bio, foto_url, especialidade, cref, created_at, updated_at`

func (r *roleRepo) GetProfessorProfile(ctx context.Context, userID string) (*model.ExtendedProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM professor_profiles WHERE user_id = $1`, professorColumns)

	p := &model.ExtendedProfile{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Nome, &p.Email, &p.Telefone, &p.Bio,
		&p.FotoURL, &p.Especialidade, &p.CREF, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля преподавателя: %w", err)
	}
	return p, nil
}

func (r *roleRepo) Upsert(ctx context.Context, rec *model.RoleRecord) error {
	var (
		query string
		args  []any
	)

	switch rec.Kind {
	case model.KindProfessor:
		query = `
			INSERT INTO professor_profiles (user_id, nome, email, telefone, bio, foto_url, especialidade, cref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id) DO UPDATE SET
				nome = EXCLUDED.nome,
				email = EXCLUDED.email,
				telefone = EXCLUDED.telefone,
				bio = EXCLUDED.bio,
				foto_url = EXCLUDED.foto_url,
				especialidade = EXCLUDED.especialidade,
				cref = EXCLUDED.cref`
		args = []any{rec.UserID, rec.Nome, rec.Email, rec.Telefone, rec.Bio, rec.FotoURL, rec.Especialidade, rec.CREF}
	case model.KindAluno, model.KindAdmin:
		table, _ := tableFor(rec.Kind)
		query = fmt.Sprintf(`
			INSERT INTO %s (user_id, nome, email)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				nome = EXCLUDED.nome,
				email = EXCLUDED.email`, table)
		args = []any{rec.UserID, rec.Nome, rec.Email}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, rec.Kind)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка upsert роли %s: %w", rec.Kind, err)
	}
	return nil
}

func (r *roleRepo) Delete(ctx context.Context, kind model.RoleKind, userID string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, table), userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления из %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
