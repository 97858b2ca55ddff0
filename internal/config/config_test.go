package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.WebSocketPath != "/ws/chat" {
		t.Errorf("WebSocketPath = %q", cfg.WebSocketPath)
	}
	if cfg.MessagePageSize != 20 {
		t.Errorf("MessagePageSize = %d, want 20", cfg.MessagePageSize)
	}
	if cfg.Reconnect.BaseDelay != time.Second || cfg.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("reconnect delays = %s/%s", cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay)
	}
	if cfg.Reconnect.MaxAttempts != 8 {
		t.Errorf("MaxAttempts = %d, want 8", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "https://chat.example.com")
	t.Setenv("MESSAGE_PAGE_SIZE", "50")
	t.Setenv("RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("CHAT_LOCALE", "zh")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "https://chat.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.MessagePageSize != 50 {
		t.Errorf("MessagePageSize = %d, want 50", cfg.MessagePageSize)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %s, want 500ms", cfg.Reconnect.BaseDelay)
	}
	if cfg.Locale != "zh" {
		t.Errorf("Locale = %q, want zh", cfg.Locale)
	}
}

func TestLoad_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("MESSAGE_PAGE_SIZE", "lots")
	t.Setenv("REFRESH_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MessagePageSize != 20 {
		t.Errorf("MessagePageSize = %d, want the default", cfg.MessagePageSize)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("RefreshInterval = %s, want the default", cfg.RefreshInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerURL:       "http://localhost:8080",
			WebSocketPath:   "/ws/chat",
			StatePath:       "./state.db",
			MessagePageSize: 20,
			Reconnect:       ReconnectConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 8},
			RefreshInterval: 30 * time.Second,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server url", func(c *Config) { c.ServerURL = "" }},
		{"relative server url", func(c *Config) { c.ServerURL = "localhost:8080" }},
		{"bad scheme", func(c *Config) { c.ServerURL = "ftp://host" }},
		{"ws path without slash", func(c *Config) { c.WebSocketPath = "ws/chat" }},
		{"empty state path", func(c *Config) { c.StatePath = "" }},
		{"zero page size", func(c *Config) { c.MessagePageSize = 0 }},
		{"max delay below base", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }},
		{"zero attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }},
		{"zero refresh", func(c *Config) { c.RefreshInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/chat"},
		{"https://chat.example.com", "wss://chat.example.com/ws/chat"},
	}
	for _, tc := range cases {
		cfg := &Config{ServerURL: tc.server, WebSocketPath: "/ws/chat"}
		if got := cfg.WebSocketURL(); got != tc.want {
			t.Errorf("WebSocketURL(%s) = %q, want %q", tc.server, got, tc.want)
		}
	}
}
