package session

import (
	"context"
	stderrors "errors"
	"sync"

	"medialink-client-go/internal/domain/eventbus"
	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/domain/session/store"
	"medialink-client-go/internal/platform/errors"
	"medialink-client-go/internal/transport/api"
)

type (
	// ServerConfig re-exports the shared session entity for callers.
	ServerConfig = model.ServerConfig
	// Credentials re-exports the token pair.
	Credentials = model.Credentials
	// UserProfile re-exports the cached user object.
	UserProfile = model.UserProfile
	// SessionState re-exports the derived state.
	SessionState = model.SessionState
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

// Publisher is the event surface the manager notifies on state changes.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Store  store.Store
	Client *api.Client
	Logger Logger
	Bus    Publisher
}

// Manager owns the credential lifecycle: login, logout, startup check and
// full reset. It is the single writer to the credential store; the pairing
// coordinator hands authorized tokens through AdoptCredentials so every
// persisted write goes through one mutex.
type Manager struct {
	store  store.Store
	client *api.Client
	logger Logger
	bus    Publisher

	mu       sync.Mutex
	snapshot model.Snapshot
	loaded   bool
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, stderrors.New("session manager requires a store")
	}
	if opts.Client == nil {
		return nil, stderrors.New("session manager requires an api client")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("session manager requires a logger")
	}
	return &Manager{
		store:  opts.Store,
		client: opts.Client,
		logger: opts.Logger,
		bus:    opts.Bus,
	}, nil
}

// State derives the current session state.
func (m *Manager) State(ctx context.Context) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	return m.snapshot.State()
}

// Server returns the active server config, or nil when unconfigured.
func (m *Manager) Server(ctx context.Context) *ServerConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	if m.snapshot.Server == nil {
		return nil
	}
	cfg := *m.snapshot.Server
	return &cfg
}

// Profile returns the cached user profile, or nil. It may be stale; CheckAuth
// refreshes it.
func (m *Manager) Profile(ctx context.Context) *UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	if m.snapshot.Profile == nil {
		return nil
	}
	profile := *m.snapshot.Profile
	return &profile
}

// SetServer persists a freshly validated server config. Credentials from a
// previous server do not survive the change.
func (m *Manager) SetServer(ctx context.Context, cfg ServerConfig) error {
	if !cfg.Validated {
		return errors.New(errors.KindConfig, "session.set_server", "server config is not validated")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SaveServer(ctx, cfg); err != nil {
		m.logger.Error("failed to persist server config: %v", err)
		return err
	}
	m.snapshot = model.Snapshot{Server: &cfg}
	m.loaded = true
	m.publishState()
	return nil
}

// Login authenticates with the server and persists the resulting session.
// It is never retried automatically and server rejections are surfaced
// verbatim.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)

	if m.snapshot.Server == nil || !m.snapshot.Server.Validated {
		return nil, errors.New(errors.KindConfig, "session.login", "no validated server configured")
	}

	resp, err := m.client.Post(ctx, m.snapshot.Server.APIBase+"/auth/login", api.LoginRequest{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errors.New(errors.KindRejected, "session.login", resp.Message())
	}

	var payload api.LoginResponse
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, errors.New(errors.KindRejected, "session.login", "server returned no token")
	}

	creds := Credentials{AccessToken: payload.Token}
	profile := payload.User
	if err := m.store.SaveCredentials(ctx, creds, &profile); err != nil {
		// The session is valid server-side; keep it in memory and let the
		// next successful write repair the disk state.
		m.logger.Error("failed to persist credentials: %v", err)
	}
	m.snapshot.Credentials = &creds
	m.snapshot.Profile = &profile

	m.logger.Info("logged in as %s", profile.Username)
	m.publishState()
	return &profile, nil
}

// Logout ends the session. The server call is best-effort; local state always
// clears, so a client can log out of an unreachable server.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)

	if m.snapshot.Credentials != nil && m.snapshot.Server != nil {
		resp, err := m.client.PostAuthed(ctx,
			m.snapshot.Server.APIBase+"/auth/logout", nil,
			m.snapshot.Credentials.AccessToken)
		if err != nil {
			m.logger.Warn("server logout failed, clearing local session anyway: %v", err)
		} else if !resp.OK() {
			m.logger.Warn("server rejected logout (%d), clearing local session anyway", resp.StatusCode)
		}
	}

	m.clearCredentialsLocked(ctx)
	m.logger.Info("logged out")
	m.publishState()
}

// CheckAuth re-validates the persisted session on startup. It never surfaces
// errors: any failure degrades to AwaitingAuth so the app always reaches a
// usable screen. The server call is made at most once.
func (m *Manager) CheckAuth(ctx context.Context) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadLocked(ctx)

	if m.snapshot.Server == nil || !m.snapshot.Server.Validated {
		m.publishState()
		return model.StateUnconfigured
	}
	if m.snapshot.Credentials == nil || m.snapshot.Credentials.AccessToken == "" {
		m.publishState()
		return model.StateAwaitingAuth
	}

	resp, err := m.client.GetAuthed(ctx,
		m.snapshot.Server.APIBase+"/auth/me",
		m.snapshot.Credentials.AccessToken)
	if err != nil || !resp.OK() {
		if err != nil {
			m.logger.Warn("auth check failed: %v", err)
		} else {
			m.logger.Warn("stored token rejected with status %d", resp.StatusCode)
		}
		m.clearCredentialsLocked(ctx)
		m.publishState()
		return model.StateAwaitingAuth
	}

	var profile UserProfile
	if err := resp.Decode(&profile); err != nil {
		m.logger.Warn("auth check returned malformed profile: %v", err)
		m.clearCredentialsLocked(ctx)
		m.publishState()
		return model.StateAwaitingAuth
	}

	if err := m.store.SaveCredentials(ctx, *m.snapshot.Credentials, &profile); err != nil {
		m.logger.Error("failed to refresh cached profile: %v", err)
	}
	m.snapshot.Profile = &profile
	m.logger.Debug("auth check ok for %s", profile.Username)
	m.publishState()
	return model.StateAuthenticated
}

// AdoptCredentials persists tokens obtained outside the login path (device
// pairing). The server config must already be stored.
func (m *Manager) AdoptCredentials(ctx context.Context, creds Credentials, profile *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)

	if m.snapshot.Server == nil {
		return errors.New(errors.KindConfig, "session.adopt", "no server configured")
	}
	if err := m.store.SaveCredentials(ctx, creds, profile); err != nil {
		m.logger.Error("failed to persist paired credentials: %v", err)
		return err
	}
	m.snapshot.Credentials = &creds
	m.snapshot.Profile = profile
	m.publishState()
	return nil
}

// ClearServerConfig is the full reset: server, credentials and profile are
// removed together. It is the only operation allowed to drop the server.
func (m *Manager) ClearServerConfig(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Reset(ctx); err != nil {
		m.logger.Error("failed to reset store, clearing in-memory state anyway: %v", err)
	}
	m.snapshot = model.Snapshot{}
	m.loaded = true
	m.logger.Info("server configuration cleared")
	m.publishState()
}

func (m *Manager) clearCredentialsLocked(ctx context.Context) {
	if err := m.store.ClearCredentials(ctx); err != nil {
		m.logger.Error("failed to clear stored credentials, clearing in-memory state anyway: %v", err)
	}
	m.snapshot.Credentials = nil
	m.snapshot.Profile = nil
}

// ensureLoaded lazily reads the persisted snapshot on first use.
func (m *Manager) ensureLoaded(ctx context.Context) {
	if m.loaded {
		return
	}
	m.reloadLocked(ctx)
}

func (m *Manager) reloadLocked(ctx context.Context) {
	snap, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("failed to load persisted session: %v", err)
		snap = model.Snapshot{}
	}
	m.snapshot = snap
	m.loaded = true
}

func (m *Manager) publishState() {
	if m.bus == nil {
		return
	}
	data := eventbus.SessionEventData{State: string(m.snapshot.State())}
	if m.snapshot.Profile != nil {
		data.UserID = m.snapshot.Profile.ID
		data.Username = m.snapshot.Profile.Username
	}
	m.bus.Publish(eventbus.EventSessionState, data)
}
