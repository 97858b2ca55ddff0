// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all client configuration.
type Config struct {
	ServerURL       string // HTTP base of the chat backend
	WebSocketPath   string
	StatePath       string // SQLite database for persisted client state
	MessagePageSize int
	Reconnect       ReconnectConfig
	RefreshInterval time.Duration // conversation list auto-refresh
	Locale          string        // explicit locale override, "" = detect
}

// ReconnectConfig controls the WebSocket backoff schedule.
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:       getEnv("CHAT_SERVER_URL", "http://localhost:8080"),
		WebSocketPath:   getEnv("CHAT_WS_PATH", "/ws/chat"),
		StatePath:       getEnv("STATE_PATH", "./data/talkline.db"),
		MessagePageSize: getEnvInt("MESSAGE_PAGE_SIZE", 20),
		Reconnect: ReconnectConfig{
			BaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", time.Second),
			MaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
			MaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 8),
		},
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 30*time.Second),
		Locale:          getEnv("CHAT_LOCALE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CHAT_SERVER_URL cannot be empty")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CHAT_SERVER_URL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CHAT_SERVER_URL scheme must be http or https, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		return fmt.Errorf("CHAT_WS_PATH must start with /")
	}
	if c.StatePath == "" {
		return fmt.Errorf("STATE_PATH cannot be empty")
	}
	if c.MessagePageSize <= 0 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be > 0")
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < base <= max")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be > 0")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be > 0")
	}
	return nil
}

// WebSocketURL derives the ws(s) endpoint from the HTTP server URL.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.WebSocketPath
	u.RawQuery = ""
	return u.String()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
