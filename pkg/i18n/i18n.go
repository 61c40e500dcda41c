// Package i18n localizes customer notices and order audit notes.
// Translations are compiled into the binary.
package i18n

import "fmt"

// DefaultLang is used when a key or language is not found.
const DefaultLang = "en"

// Translate returns a localized string for key in lang, formatted with args.
// Unknown languages fall back to English, unknown keys to the key itself.
func Translate(key, lang string, args ...interface{}) string {
	if lang == "" {
		lang = DefaultLang
	}

	langMap, ok := translations[key]
	if !ok {
		return key
	}

	tmpl, ok := langMap[lang]
	if !ok {
		if tmpl, ok = langMap[DefaultLang]; !ok {
			return key
		}
	}

	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
