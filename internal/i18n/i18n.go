// Package i18n embeds the translation catalogs and resolves the user's
// locale. Detection order: persisted selection, then the process locale
// environment, then the English fallback.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

//go:embed locales
var localeFS embed.FS

// FallbackLocale is used when nothing else resolves.
const FallbackLocale = "en"

// Bundle holds the loaded catalogs for one selected locale.
type Bundle struct {
	mu       sync.RWMutex
	locale   string
	catalog  map[string]string
	fallback map[string]string
}

// Load creates a bundle for the given locale, falling back to English for
// missing keys. An unknown locale degrades to the fallback catalog.
func Load(locale string) (*Bundle, error) {
	fallback, err := readCatalog(FallbackLocale)
	if err != nil {
		return nil, fmt.Errorf("load fallback catalog: %w", err)
	}

	b := &Bundle{locale: FallbackLocale, catalog: fallback, fallback: fallback}
	if locale != "" && locale != FallbackLocale {
		if err := b.SetLocale(locale); err != nil {
			slog.Warn("unknown locale, using fallback", "locale", locale)
		}
	}
	return b, nil
}

// Locale returns the active locale.
func (b *Bundle) Locale() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locale
}

// SetLocale switches the active catalog.
func (b *Bundle) SetLocale(locale string) error {
	locale = Normalize(locale)
	catalog, err := readCatalog(locale)
	if err != nil {
		return fmt.Errorf("load catalog %s: %w", locale, err)
	}
	b.mu.Lock()
	b.locale = locale
	b.catalog = catalog
	b.mu.Unlock()
	return nil
}

// T translates a key, falling back to English and finally to the key itself.
func (b *Bundle) T(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.catalog[key]; ok {
		return v
	}
	if v, ok := b.fallback[key]; ok {
		return v
	}
	return key
}

// Tf translates a key and formats it with the given arguments.
func (b *Bundle) Tf(key string, args ...any) string {
	return fmt.Sprintf(b.T(key), args...)
}

// Available lists the embedded locales.
func Available() []string {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return []string{FallbackLocale}
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	return out
}

// Detect resolves the locale to use: the persisted selection wins, then the
// LC_ALL/LC_MESSAGES/LANG environment, then the fallback.
func Detect(persisted string) string {
	if persisted != "" {
		return Normalize(persisted)
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return Normalize(v)
		}
	}
	return FallbackLocale
}

// Normalize reduces locale spellings like "zh_CN.UTF-8" or "en-US" to the
// bare language code.
func Normalize(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "._"); i >= 0 {
		locale = locale[:i]
	}
	if i := strings.Index(locale, "-"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ToLower(locale)
	if locale == "" || locale == "c" || locale == "posix" {
		return FallbackLocale
	}
	return locale
}

func readCatalog(locale string) (map[string]string, error) {
	data, err := localeFS.ReadFile("locales/" + locale + ".json")
	if err != nil {
		return nil, err
	}
	var catalog map[string]string
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return catalog, nil
}
