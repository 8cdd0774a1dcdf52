package config

import "time"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Name:    "medialink",
			Version: "1.0.0",
		},
		Resolver: ResolverConfig{
			ProbeTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			RequestTimeout: 10 * time.Second,
		},
		Pairing: PairingConfig{
			RequestTimeout:    10 * time.Second,
			MaxRequestRetries: 1,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteStore{
				DSN: "data/medialink.db",
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "medialink.log",
		},
		DevServer: DevServerConfig{
			Enabled:      false,
			IP:           "0.0.0.0",
			Port:         8085,
			JWTSecret:    "medialink_dev_secret",
			SQLiteDSN:    "data/devserver.db",
			PairExpiry:   5 * time.Minute,
			PairInterval: 3 * time.Second,
		},
	}
}
