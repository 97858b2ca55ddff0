package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Keys under which client state is stored.
const (
	keyToken  = "jwt_token"
	keyTheme  = "theme_preference"
	keyLocale = "locale"
)

const busyRetries = 3

// SQLiteSettings implements Settings using SQLite.
type SQLiteSettings struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed settings store.
func NewSQLite(dbPath string) (Settings, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode so a second client instance reading state does not block us.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteSettings{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteSettings) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteSettings) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteSettings) Close() error {
	return s.db.Close()
}

// Token returns the stored bearer token.
func (s *SQLiteSettings) Token(ctx context.Context) (string, error) {
	return s.get(ctx, keyToken)
}

// SetToken stores the bearer token.
func (s *SQLiteSettings) SetToken(ctx context.Context, token string) error {
	return s.set(ctx, keyToken, token)
}

// ClearToken removes the stored token.
func (s *SQLiteSettings) ClearToken(ctx context.Context) error {
	return s.delete(ctx, keyToken)
}

// ThemePreference returns the stored theme preference.
func (s *SQLiteSettings) ThemePreference(ctx context.Context) (string, error) {
	return s.get(ctx, keyTheme)
}

// SetThemePreference stores the theme preference.
func (s *SQLiteSettings) SetThemePreference(ctx context.Context, pref string) error {
	switch pref {
	case ThemeAuto, ThemeLight, ThemeDark:
		return s.set(ctx, keyTheme, pref)
	default:
		return fmt.Errorf("unknown theme preference %q", pref)
	}
}

// Locale returns the selected locale.
func (s *SQLiteSettings) Locale(ctx context.Context) (string, error) {
	return s.get(ctx, keyLocale)
}

// SetLocale stores the selected locale.
func (s *SQLiteSettings) SetLocale(ctx context.Context, locale string) error {
	return s.set(ctx, keyLocale, locale)
}

func (s *SQLiteSettings) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteSettings) set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO client_state (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.withBusyRetry(func() error {
		_, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLiteSettings) delete(ctx context.Context, key string) error {
	return s.withBusyRetry(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// withBusyRetry retries writes that hit SQLite concurrency errors, which
// happen when a second client instance holds the write lock.
func (s *SQLiteSettings) withBusyRetry(fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = fn()
		if err == nil || !isSQLiteConflict(err) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return err
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
