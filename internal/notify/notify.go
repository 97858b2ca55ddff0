// Package notify wraps permission-gated desktop notifications. A
// notification attempted while permission is not granted is dropped, not
// deferred; there is no retry or queueing.
package notify

import (
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

// Platform delivers one notification to the host environment.
type Platform interface {
	Notify(title, body string) error
}

// Permissioner is implemented by platforms that have a real permission
// prompt. Platforms without one are considered granted once the user
// explicitly asks.
type Permissioner interface {
	RequestPermission() (bool, error)
}

// Desktop delivers notifications through the host's notification daemon.
type Desktop struct {
	AppIcon string
}

// Notify implements Platform.
func (d Desktop) Notify(title, body string) error {
	return beeep.Notify(title, body, d.AppIcon)
}

// Bridge gates notification delivery behind the permission state.
type Bridge struct {
	platform Platform

	mu        sync.Mutex
	requested bool
	granted   bool
}

// NewBridge creates a bridge. Permission starts out not granted; it is never
// requested automatically on startup.
func NewBridge(platform Platform) *Bridge {
	return &Bridge{platform: platform}
}

// RequestPermission asks for permission. It must only be called from an
// explicit user action; repeated calls do not re-prompt.
func (b *Bridge) RequestPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.requested {
		return b.granted
	}
	b.requested = true

	if p, ok := b.platform.(Permissioner); ok {
		granted, err := p.RequestPermission()
		if err != nil {
			slog.Warn("notification permission request failed", "error", err)
			b.granted = false
			return false
		}
		b.granted = granted
		return granted
	}

	// No prompt on this platform; the explicit request is the consent.
	b.granted = true
	return true
}

// Granted reports the current permission state.
func (b *Bridge) Granted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted
}

// Show displays a notification if permission is granted, returning whether
// it was delivered.
func (b *Bridge) Show(title, body string) bool {
	b.mu.Lock()
	granted := b.granted
	b.mu.Unlock()

	if !granted {
		slog.Debug("notification dropped, permission not granted", "title", title)
		return false
	}
	if err := b.platform.Notify(title, body); err != nil {
		slog.Warn("failed to show notification", "error", err)
		return false
	}
	return true
}
