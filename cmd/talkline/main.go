// talkline - terminal chat client
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/channel"
	"github.com/avlasenko/talkline/internal/chat"
	"github.com/avlasenko/talkline/internal/config"
	"github.com/avlasenko/talkline/internal/conversations"
	"github.com/avlasenko/talkline/internal/i18n"
	"github.com/avlasenko/talkline/internal/messages"
	"github.com/avlasenko/talkline/internal/notify"
	"github.com/avlasenko/talkline/internal/session"
	"github.com/avlasenko/talkline/internal/store"
	"github.com/avlasenko/talkline/internal/theme"
	"github.com/avlasenko/talkline/internal/ui"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting talkline", "server", cfg.ServerURL)

	settings, err := store.NewSQLite(cfg.StatePath)
	if err != nil {
		slog.Error("Failed to open state database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := settings.Close(); closeErr != nil {
			slog.Error("Failed to close state database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := settings.Ping(ctx); err != nil {
		slog.Error("State database health check failed", "error", err)
		os.Exit(1)
	}

	// Locale: persisted choice wins, then environment, then English.
	persisted, err := settings.Locale(ctx)
	if err != nil {
		slog.Warn("Failed to load persisted locale", "error", err)
	}
	locale := cfg.Locale
	if locale == "" {
		locale = i18n.Detect(persisted)
	}
	bundle, err := i18n.Load(locale)
	if err != nil {
		slog.Warn("Unknown locale, falling back", "locale", locale)
		bundle, _ = i18n.Load(i18n.FallbackLocale)
	}

	pref, err := settings.ThemePreference(ctx)
	if err != nil {
		slog.Warn("Failed to load theme preference", "error", err)
	}
	slog.Info("Theme resolved", "preference", pref, "applied", theme.Resolve(pref))

	sessions := session.NewManager(nil, settings)
	client := api.New(cfg.ServerURL, sessions)
	sessions.SetAPI(client)

	ch := channel.New(&channel.WebSocketDialer{}, cfg.WebSocketURL(), channel.Options{
		Backoff: channel.Backoff{
			Base: cfg.Reconnect.BaseDelay,
			Max:  cfg.Reconnect.MaxDelay,
		},
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	})

	convos := conversations.NewStore(client)
	msgs := messages.NewStore(client)
	bridge := notify.NewBridge(&notify.Desktop{})

	manager := chat.New(sessions, ch, convos, msgs, bridge, bundle, chat.Options{
		PageSize:        cfg.MessagePageSize,
		RefreshInterval: cfg.RefreshInterval,
	})

	go manager.Run(ctx)

	// Restore a persisted session before the first prompt renders.
	if err := sessions.Init(ctx); err != nil {
		slog.Warn("Session restore failed", "error", err)
	}
	if sess := sessions.Current(); sess.Active() {
		if err := manager.StartSession(ctx); err != nil {
			slog.Warn("Failed to start chat session", "error", err)
		}
	}

	cli := ui.New(os.Stdin, os.Stdout, sessions, manager, client, convos, msgs, bridge, settings, bundle)
	if err := cli.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Command loop failed", "error", err)
		os.Exit(1)
	}

	stop()
	manager.Teardown()
	slog.Info("talkline stopped")
}
