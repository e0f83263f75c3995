// errors.go — ошибки сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — строка роли или профиля не найдена.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных (seed-файл).
	ErrValidation = errors.New("ошибка валидации")
)
