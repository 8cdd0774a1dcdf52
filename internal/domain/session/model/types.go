package model

import "time"

// ServerConfig is a validated media server endpoint. It is immutable once
// validated: replaced wholesale, never patched.
type ServerConfig struct {
	BaseURL   string `json:"base_url"` // scheme+host+port, no trailing slash
	APIBase   string `json:"api_base"` // BaseURL + "/api"
	Validated bool   `json:"validated"`
}

// Credentials are the opaque bearer tokens issued by the server. They live
// from a successful login or pairing until logout, reset or a 401.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// UserProfile is a cached copy of the server's user object. It may be stale
// and is refreshed on every successful auth check.
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is derived from what the store holds, never persisted itself.
type SessionState string

const (
	StateUnconfigured  SessionState = "unconfigured"
	StateAwaitingAuth  SessionState = "awaiting_auth"
	StateAuthenticated SessionState = "authenticated"
)

// Snapshot is the unit the credential store reads and writes atomically.
// Credentials must never exist without a ServerConfig.
type Snapshot struct {
	Server      *ServerConfig `json:"server,omitempty"`
	Credentials *Credentials  `json:"credentials,omitempty"`
	Profile     *UserProfile  `json:"profile,omitempty"`
}

// State derives the session state from the snapshot contents.
func (s Snapshot) State() SessionState {
	switch {
	case s.Server == nil || !s.Server.Validated:
		return StateUnconfigured
	case s.Credentials == nil || s.Credentials.AccessToken == "":
		return StateAwaitingAuth
	default:
		return StateAuthenticated
	}
}

// Logger provides the minimal logging contract required by the session domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
