// middleware.go — выбор языка запроса.
package i18n

import (
	"net/http"
	"time"
)

// LangCookieName — cookie с явно выбранным языком.
const LangCookieName = "fp_lang"

// langCookieTTL — сколько помнится выбор языка.
const langCookieTTL = 365 * 24 * time.Hour

// Middleware помещает язык в контекст запроса и в заголовок Content-Language.
// Порядок: параметр ?lang= (запоминается в cookie), cookie, Accept-Language,
// DefaultLang.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := r.URL.Query().Get("lang")
			if IsSupported(lang) {
				SetLangCookie(w, lang)
			} else {
				lang = requestLanguage(r)
			}

			w.Header().Set("Content-Language", lang)
			w.Header().Add("Vary", "Accept-Language")
			next.ServeHTTP(w, r.WithContext(WithLang(r.Context(), lang)))
		})
	}
}

// SetLangCookie запоминает выбор языка. Cookie читается и скриптами страницы.
func SetLangCookie(w http.ResponseWriter, lang string) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   int(langCookieTTL.Seconds()),
		Expires:  time.Now().Add(langCookieTTL),
		SameSite: http.SameSiteLaxMode,
	})
}

func requestLanguage(r *http.Request) string {
	if cookie, err := r.Cookie(LangCookieName); err == nil && IsSupported(cookie.Value) {
		return cookie.Value
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return MatchLanguage(accept)
	}
	return DefaultLang
}
