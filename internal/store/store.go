// Package store persists client state across runs: the bearer token, the
// theme preference, and the selected locale.
package store

import "context"

// Theme preference values.
const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings is the persisted client state repository.
type Settings interface {
	// Token returns the stored bearer token, or "" when logged out.
	Token(ctx context.Context) (string, error)

	// SetToken stores the bearer token.
	SetToken(ctx context.Context, token string) error

	// ClearToken removes the stored token.
	ClearToken(ctx context.Context) error

	// ThemePreference returns the stored theme preference, or "" when the
	// user never picked one.
	ThemePreference(ctx context.Context) (string, error)

	// SetThemePreference stores the theme preference (auto, light, dark).
	SetThemePreference(ctx context.Context, pref string) error

	// Locale returns the selected locale, or "" when never selected.
	Locale(ctx context.Context) (string, error)

	// SetLocale stores the selected locale.
	SetLocale(ctx context.Context, locale string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
