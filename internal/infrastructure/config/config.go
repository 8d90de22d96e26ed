package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Remote    RemoteConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// TerminalConfig holds local terminal configuration.
type TerminalConfig struct {
	// SettingsFile is the global terminal settings file (TOML or YAML).
	SettingsFile string `envconfig:"TERMINAL_SETTINGS_FILE"`
	// Worktrees lists the project's root directories.
	Worktrees   []string `envconfig:"TERMINAL_WORKTREES"`
	DefaultCols uint16   `envconfig:"TERMINAL_COLS" default:"80"`
	DefaultRows uint16   `envconfig:"TERMINAL_ROWS" default:"24"`
}

// RemoteConfig holds remote terminal transport configuration.
type RemoteConfig struct {
	// Listen is the gRPC address to serve local terminals to remote guests.
	// Empty disables host mode.
	Listen string `envconfig:"REMOTE_LISTEN"`
	// Address is the remote host to join. Empty means the project is local.
	Address   string `envconfig:"REMOTE_ADDR"`
	ProjectID uint64 `envconfig:"REMOTE_PROJECT_ID"`
	// Compression is the gRPC compressor for terminal traffic ("zstd" or "").
	Compression string        `envconfig:"REMOTE_COMPRESSION" default:"zstd"`
	CallTimeout time.Duration `envconfig:"REMOTE_CALL_TIMEOUT" default:"10s"`
}

// IsGuest reports whether the service proxies a remotely hosted project.
func (r RemoteConfig) IsGuest() bool {
	return r.Address != ""
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds allowed browser origins for the HTTP API.
type CORSConfig struct {
	Origins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := Process()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Process reads environment variables without validating, so callers can
// apply overrides first.
func Process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.Remote.IsGuest() && c.Remote.ProjectID == 0 {
		return fmt.Errorf("REMOTE_PROJECT_ID is required when REMOTE_ADDR is set")
	}
	if c.Remote.IsGuest() && c.Remote.Listen != "" {
		return fmt.Errorf("REMOTE_LISTEN and REMOTE_ADDR are mutually exclusive")
	}
	switch c.Remote.Compression {
	case "", "zstd":
	default:
		return fmt.Errorf("unsupported REMOTE_COMPRESSION %q", c.Remote.Compression)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			DefaultCols: 80,
			DefaultRows: 24,
		},
		Remote: RemoteConfig{
			Compression: "zstd",
			CallTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:3000"},
		},
	}
}
