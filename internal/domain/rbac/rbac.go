// Пакет rbac — правила определения роли пользователя портала.
// Роль определяется наличием строки в одной из трёх таблиц ролей.
// Если пользователь ошибочно присутствует в нескольких таблицах,
// побеждает первая по порядку Precedence: professor > aluno > admin.
package rbac

import "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"

// Таблицы ролей.
const (
	TableProfessor = "professor_profiles"
	TableAluno     = "aluno_profiles"
	TableAdmin     = "admin_users"
)

// Source — таблица, наличие строки в которой даёт роль.
type Source struct {
	Kind  model.RoleKind
	Table string
}

// Precedence — порядок проверки таблиц ролей. Порядок — единственное
// правило разрешения конфликтов, менять его нельзя.
var Precedence = []Source{
	{Kind: model.KindProfessor, Table: TableProfessor},
	{Kind: model.KindAluno, Table: TableAluno},
	{Kind: model.KindAdmin, Table: TableAdmin},
}

// Имена по умолчанию, если имя не удалось прочитать.
const (
	DefaultNameProfessor = "Professor"
	DefaultNameAluno     = "Aluno"
	DefaultNameAdmin     = "Administrador"
	DefaultNameUnknown   = "Usuário"
)

// DefaultName возвращает имя по умолчанию для роли.
func DefaultName(kind model.RoleKind) string {
	switch kind {
	case model.KindProfessor:
		return DefaultNameProfessor
	case model.KindAluno:
		return DefaultNameAluno
	case model.KindAdmin:
		return DefaultNameAdmin
	default:
		return DefaultNameUnknown
	}
}

// TableFor возвращает таблицу роли. Для unknown — пустая строка.
func TableFor(kind model.RoleKind) string {
	for _, s := range Precedence {
		if s.Kind == kind {
			return s.Table
		}
	}
	return ""
}

// FirstMatch возвращает роль по набору найденных строк.
// present — множество видов ролей, для которых строка найдена.
// Используется как эталон порядка в тестах и CLI-диагностике.
func FirstMatch(present map[model.RoleKind]bool) model.RoleKind {
	for _, s := range Precedence {
		if present[s.Kind] {
			return s.Kind
		}
	}
	return model.KindUnknown
}

// HomePath возвращает стартовую страницу портала для роли.
func HomePath(kind model.RoleKind) string {
	switch kind {
	case model.KindProfessor:
		return "/professor"
	case model.KindAluno:
		return "/aluno"
	case model.KindAdmin:
		return "/admin"
	default:
		return "/pending"
	}
}

// IsValidKind проверяет, является ли строка известной ролью (кроме unknown).
func IsValidKind(kind model.RoleKind) bool {
	return TableFor(kind) != ""
}
