package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".medialink.yaml"

// Loader reads configuration from a yaml file with environment overrides.
type Loader struct {
	path      string
	useDotEnv bool
}

// NewLoader creates a loader that reads the default config file from the
// working directory.
func NewLoader() *Loader {
	return &Loader{
		path:      defaultConfigFile,
		useDotEnv: true,
	}
}

// WithPath overrides the config file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Load retrieves configuration: defaults, then file, then environment.
// A missing file is not an error; defaults plus environment apply.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			// No .env file: fall through to the process environment.
		}
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(l.path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEDIALINK_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}
	if v := os.Getenv("MEDIALINK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MEDIALINK_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("MEDIALINK_SQLITE_DSN"); v != "" {
		cfg.Store.SQLite.DSN = v
	}
	if v := os.Getenv("MEDIALINK_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("MEDIALINK_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("MEDIALINK_DEVSERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DevServer.Port = port
		}
	}
	if v := os.Getenv("MEDIALINK_DEVSERVER_SECRET"); v != "" {
		cfg.DevServer.JWTSecret = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Resolver.ProbeTimeout <= 0 {
		return fmt.Errorf("resolver probe_timeout must be positive")
	}
	if cfg.Session.RequestTimeout <= 0 {
		return fmt.Errorf("session request_timeout must be positive")
	}
	if cfg.Pairing.MaxRequestRetries < 0 {
		return fmt.Errorf("pairing max_request_retries must not be negative")
	}
	if cfg.DevServer.Port < 0 || cfg.DevServer.Port > 65535 {
		return fmt.Errorf("devserver port out of range: %d", cfg.DevServer.Port)
	}
	return nil
}
