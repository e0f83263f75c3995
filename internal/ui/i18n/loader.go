// loader.go — встроенные каталоги переводов и их загрузка.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
)

// LocaleFS — JSON-каталоги переводов, встроенные в бинарник.
//
//go:embed locales/*.json
var LocaleFS embed.FS

// Languages — коды языков, для которых обязаны существовать каталоги.
var Languages = []string{"pt", "en"}

// LoadFromEmbedFS загружает встроенные каталоги.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	return LoadCatalogs(bundle, LocaleFS, logger)
}

// LoadCatalogs читает locales/<lang>.json из fsys для каждого языка из
// Languages. Каталоги должны переводить один и тот же набор ключей:
// ключ, которого нет в одном из языков, — ошибка загрузки, а не
// молчаливый fallback на DefaultLang.
func LoadCatalogs(bundle *Bundle, fsys fs.FS, logger *slog.Logger) error {
	for _, lang := range Languages {
		name := path.Join("locales", lang+".json")
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("i18n: не удалось прочитать %s: %w", name, err)
		}
		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	if diff := bundle.keyDiff(); len(diff) > 0 {
		return fmt.Errorf("i18n: каталоги расходятся: %s", strings.Join(diff, ", "))
	}

	logger.Info("i18n каталоги загружены", slog.Int("languages", len(Languages)))
	return nil
}

// keyDiff сравнивает каждый каталог с каталогом DefaultLang.
// Элемент результата — "<lang> без <key>".
func (b *Bundle) keyDiff() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	base := b.catalogs[DefaultLang]
	var diff []string
	for _, lang := range Languages {
		if lang == DefaultLang {
			continue
		}
		other := b.catalogs[lang]
		for _, key := range slices.Sorted(maps.Keys(base)) {
			if _, ok := other[key]; !ok {
				diff = append(diff, lang+" без "+key)
			}
		}
		for _, key := range slices.Sorted(maps.Keys(other)) {
			if _, ok := base[key]; !ok {
				diff = append(diff, DefaultLang+" без "+key)
			}
		}
	}
	return diff
}
