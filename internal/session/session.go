// Package session holds the authenticated state of the client: the bearer
// token and the validated current-user profile. Every token change
// revalidates against the profile endpoint; a 401 clears the session
// silently, any other failure clears it and surfaces an auth error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/domain"
	"github.com/avlasenko/talkline/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAuthenticated is returned by operations that need an active session.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthAPI is the slice of the REST client the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error)
	Me(ctx context.Context) (*domain.User, error)
}

// Manager owns the session lifecycle: init (load persisted token), active,
// teardown (clear everything on logout or token rejection).
type Manager struct {
	api      AuthAPI
	settings store.Settings

	mu        sync.RWMutex
	token     string
	user      *domain.User
	authError string
	listeners []func(domain.Session)
}

// NewManager creates a session manager. settings may be nil in tests; the
// token is then held in memory only.
func NewManager(authAPI AuthAPI, settings store.Settings) *Manager {
	return &Manager{api: authAPI, settings: settings}
}

// SetAPI injects the REST client after construction. The client needs the
// manager as its token source, so one side has to be wired late.
func (m *Manager) SetAPI(authAPI AuthAPI) {
	m.api = authAPI
}

// Token returns the current bearer token. Implements api.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Current returns a snapshot of the session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Session{Token: m.token, CurrentUser: m.user}
}

// AuthError returns the last surfaced auth error message, if any.
func (m *Manager) AuthError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authError
}

// ClearAuthError resets the surfaced auth error.
func (m *Manager) ClearAuthError() {
	m.mu.Lock()
	m.authError = ""
	m.mu.Unlock()
}

// OnChange registers a listener invoked after every session change.
func (m *Manager) OnChange(fn func(domain.Session)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Init loads the persisted token and validates it. An expired or rejected
// token is treated as expiry: cleared silently, no error surfaced.
func (m *Manager) Init(ctx context.Context) error {
	if m.settings == nil {
		return nil
	}
	token, err := m.settings.Token(ctx)
	if err != nil {
		return fmt.Errorf("load persisted token: %w", err)
	}
	if token == "" {
		return nil
	}

	if expired(token) {
		slog.Info("persisted token already expired, clearing session")
		m.clear(ctx, "")
		return nil
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	m.validate(ctx)
	return nil
}

// Login exchanges credentials for a token, persists it, and validates the
// session by fetching the profile.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) error {
	m.ClearAuthError()
	resp, err := m.api.Login(ctx, creds)
	if err != nil {
		m.setAuthError(err.Error())
		return err
	}
	if resp.Token == "" {
		err := errors.New("login response did not include a token")
		m.setAuthError(err.Error())
		return err
	}

	m.mu.Lock()
	m.token = resp.Token
	m.user = nil
	m.mu.Unlock()
	m.persistToken(ctx, resp.Token)
	m.validate(ctx)

	if s := m.Current(); !s.Active() {
		if msg := m.AuthError(); msg != "" {
			return errors.New(msg)
		}
		return ErrNotAuthenticated
	}
	return nil
}

// Register creates an account. The user logs in separately afterwards.
func (m *Manager) Register(ctx context.Context, reg api.Registration) (*domain.User, error) {
	m.ClearAuthError()
	resp, err := m.api.Register(ctx, reg)
	if err != nil {
		m.setAuthError(err.Error())
		return nil, err
	}
	return resp.User, nil
}

// Logout clears token and profile synchronously and unconditionally.
func (m *Manager) Logout(ctx context.Context) {
	m.ClearAuthError()
	m.clear(ctx, "")
	slog.Info("logged out")
}

// validate fetches the profile for the current token. A 401 response clears
// the session silently; other failures clear it and record the error.
func (m *Manager) validate(ctx context.Context) {
	user, err := m.api.Me(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			slog.Info("session expired or token invalid")
			m.clear(ctx, "")
			return
		}
		m.clear(ctx, err.Error())
		return
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	slog.Info("session validated", "user_id", user.ID, "username", user.Username)
	m.notify()
}

func (m *Manager) clear(ctx context.Context, authError string) {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.authError = authError
	m.mu.Unlock()

	if m.settings != nil {
		if err := m.settings.ClearToken(ctx); err != nil {
			slog.Warn("failed to clear persisted token", "error", err)
		}
	}
	m.notify()
}

func (m *Manager) persistToken(ctx context.Context, token string) {
	if m.settings == nil {
		return
	}
	if err := m.settings.SetToken(ctx, token); err != nil {
		slog.Warn("failed to persist token", "error", err)
	}
}

func (m *Manager) setAuthError(msg string) {
	m.mu.Lock()
	m.authError = msg
	m.mu.Unlock()
}

func (m *Manager) notify() {
	m.mu.RLock()
	listeners := make([]func(domain.Session), len(m.listeners))
	copy(listeners, m.listeners)
	s := domain.Session{Token: m.token, CurrentUser: m.user}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// expired inspects the token's exp claim without verifying the signature,
// so a doomed validation round-trip can be skipped at startup. Tokens that
// cannot be parsed are left for the server to judge.
func expired(token string) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
