package config

import (
	"fmt"

	"github.com/kalambet/notesprefs/internal/preference"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Runtime RuntimeConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

type StorageConfig struct {
	Backend        string
	DataDir        string
	RedisAddr      string
	RedisNamespace string
}

// RuntimeConfig holds the capability facts used when a request does not
// bring its own.
type RuntimeConfig struct {
	PlatformVersion int
}

type LogConfig struct {
	Level string
}

// Capabilities returns the configured runtime as preference capabilities.
func (c Config) Capabilities() preference.Capabilities {
	return preference.Capabilities{PlatformVersion: c.Runtime.PlatformVersion}
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			Backend:        BackendSQLite,
			DataDir:        defaultDataDir(),
			RedisAddr:      "localhost:6379",
			RedisNamespace: "notesprefs",
		},
		Runtime: RuntimeConfig{
			PlatformVersion: 34,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.notesprefs.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/notesprefs/config.json.
//
// Environment variables (NOTESPREFS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid config: storage.backend %q (want %s or %s)", c.Storage.Backend, BackendSQLite, BackendRedis)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConns <= 0 {
		return fmt.Errorf("invalid config: server.max_conns must be positive, got %d", c.Server.MaxConns)
	}
	return nil
}
