package config

import (
	"time"
)

type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Session   SessionConfig   `yaml:"session"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ClientConfig identifies this installation to the media server.
type ClientConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ResolverConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type SessionConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type PairingConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRequestRetries bounds automatic retries of /pair/request.
	MaxRequestRetries int `yaml:"max_request_retries"`
}

type StoreConfig struct {
	Driver string           `yaml:"driver"`
	SQLite SQLiteStore      `yaml:"sqlite,omitempty"`
	Redis  RedisStoreConfig `yaml:"redis,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// DevServerConfig drives the bundled reference server used for local
// integration and UI development.
type DevServerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir,omitempty"`
	JWTSecret string `yaml:"jwt_secret"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
	// PairExpiry and PairInterval shape the device-code grant the server hands out.
	PairExpiry   time.Duration `yaml:"pair_expiry"`
	PairInterval time.Duration `yaml:"pair_interval"`
}
