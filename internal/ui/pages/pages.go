// Пакет pages — HTML-страницы веб-портала (templ-компоненты).
// Разметка описана в *.templ; *_templ.go генерируются командой templ generate.
package pages

import (
	"strconv"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
)

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

// page — параметры общего шаблона.
type page struct {
	TitleKey string
	User     *model.AuthUser
	// Refresh — автообновление страницы: секунды и адрес (пустой — текущий)
	RefreshAfter int
	RefreshTo    string
}

// refreshContent — значение meta refresh: "N" или "N;url=...".
func (pg page) refreshContent() string {
	content := strconv.Itoa(pg.RefreshAfter)
	if pg.RefreshTo != "" {
		content += ";url=" + pg.RefreshTo
	}
	return content
}

// LoginData — данные формы входа.
type LoginData struct {
	Email string
	// From — локальный путь, куда вернуться после входа
	From string
	// ErrorKey — ключ перевода сообщения об ошибке (пусто — без ошибки)
	ErrorKey string
}

// AccessDeniedData — данные страницы отказа в доступе.
type AccessDeniedData struct {
	User *model.AuthUser
	// NoticeKey — ключ перевода уведомления
	NoticeKey string
	// RedirectTo — куда уйти после показа уведомления
	RedirectTo   string
	RedirectWait int
}

func portalTitleKey(user *model.AuthUser) string {
	return "portal." + string(user.Kind()) + ".title"
}
