// Пакет model — доменные модели портала.
package model

import "time"

// AuthUser — составное представление аутентифицированного пользователя:
// идентичность из сессии + имя и роль из таблиц ролей.
// Существует только в памяти: пересоздаётся при каждом изменении сессии
// и никогда не сохраняется (ни в Redis, ни в cookie, ни в БД).
type AuthUser struct {
	// ID — идентификатор пользователя в auth-сервисе (sub)
	ID string
	// Email — адрес электронной почты из сессии
	Email string
	// Nome — отображаемое имя
	Nome string
	// Tipo — разрешённая роль
	Tipo Role
}

// Kind возвращает вид роли пользователя.
func (u *AuthUser) Kind() RoleKind {
	if u == nil {
		return KindUnknown
	}
	return KindOf(u.Tipo)
}

// Profile возвращает расширенный профиль. Не nil только для преподавателя
// с загруженным профилем.
func (u *AuthUser) Profile() *ExtendedProfile {
	if u == nil {
		return nil
	}
	if p, ok := u.Tipo.(Professor); ok {
		return p.Profile
	}
	return nil
}

// ExtendedProfile — расширенный профиль преподавателя (таблица professor_profiles).
type ExtendedProfile struct {
	UserID        string
	Nome          string
	Email         string
	Telefone      string
	Bio           string
	// FotoURL — ключ объекта в хранилище или абсолютный URL фотографии
	FotoURL       string
	Especialidade string
	// CREF — регистрационный номер в совете по физической культуре
	CREF      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleRecord — строка таблицы ролей (для seed и CLI).
type RoleRecord struct {
	UserID string   `yaml:"user_id" validate:"required,uuid"`
	Kind   RoleKind `yaml:"role" validate:"required,oneof=professor aluno admin"`
	Nome   string   `yaml:"nome" validate:"required,max=200"`
	Email  string   `yaml:"email" validate:"omitempty,email"`
	// Поля ниже используются только для преподавателей
	Telefone      string `yaml:"telefone,omitempty"`
	Bio           string `yaml:"bio,omitempty"`
	FotoURL       string `yaml:"foto_url,omitempty" validate:"omitempty,max=1024"`
	Especialidade string `yaml:"especialidade,omitempty"`
	CREF          string `yaml:"cref,omitempty"`
}
