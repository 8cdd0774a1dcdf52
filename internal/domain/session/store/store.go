package store

import (
	"context"

	"medialink-client-go/internal/domain/session/model"
)

// Store persists the engine's credential snapshot across restarts.
//
// All writes are atomic at snapshot granularity: a backend must never end up
// holding credentials without the server config they belong to.
type Store interface {
	// Load returns the current snapshot. A fresh installation yields an
	// empty snapshot, not an error.
	Load(ctx context.Context) (model.Snapshot, error)
	// SaveServer replaces the server config and drops any credentials that
	// referenced the previous server.
	SaveServer(ctx context.Context, server model.ServerConfig) error
	// SaveCredentials writes credentials and profile for the stored server.
	// Fails if no server config is present.
	SaveCredentials(ctx context.Context, creds model.Credentials, profile *model.UserProfile) error
	// ClearCredentials removes credentials and profile, keeping the server.
	ClearCredentials(ctx context.Context) error
	// Reset clears server, credentials and profile together.
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	// Key namespaces the snapshot; multiple installations can share one
	// backend. Defaults to "default".
	Key    string
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// SQLiteConfig provides the database location.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

const defaultKey = "default"

func (c Config) key() string {
	if c.Key == "" {
		return defaultKey
	}
	return c.Key
}
