// language.go — обработчик переключения языка портала.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/i18n"
	uimiddleware "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/ui/middleware"
)

// HandleSetLanguage обрабатывает POST /set-language.
// Устанавливает cookie языка и возвращает на страницу из Referer
// (только локальный путь).
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}

	i18n.SetLangCookie(w, lang)

	back := "/"
	if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && ref.Path != "" {
		if ref.Host == "" || ref.Host == r.Host {
			back = uimiddleware.SafeRedirect(ref.RequestURI(), "/")
		}
	}

	http.Redirect(w, r, back, http.StatusSeeOther)
}
