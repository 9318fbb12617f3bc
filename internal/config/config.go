package config

import "time"

// Config is the root configuration for Switchboard.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Hierarchy HierarchyConfig `yaml:"hierarchy"`
	Client    ClientConfig    `yaml:"client"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	// AllowedOrigins lists the Origin headers accepted on the WebSocket upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuthConfig struct {
	// Secret is the HS256 key used to verify handshake credentials.
	// When empty, a key is generated and persisted under SecretDir.
	Secret    string          `yaml:"secret"`
	SecretDir string          `yaml:"secret_dir"`
	Issuer    string          `yaml:"issuer"`
	TokenTTL  time.Duration   `yaml:"token_ttl"`
	APITokens []APITokenEntry `yaml:"api_tokens"`
}

// APITokenEntry grants a producer or operator access to the publish and admin APIs.
type APITokenEntry struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"token_hash"`
}

type HeartbeatConfig struct {
	Interval     time.Duration `yaml:"interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// HierarchyConfig maps each operational unit to its containing organization.
type HierarchyConfig struct {
	Units map[string]string `yaml:"units"`
}

// ClientConfig drives the `listen` subcommand.
type ClientConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Handlers    int           `yaml:"handlers"`
	BurstWindow time.Duration `yaml:"burst_window"`
	QuietWindow time.Duration `yaml:"quiet_window"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8430,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			SecretDir: "~/.config/switchboard",
			Issuer:    "switchboard",
			TokenTTL:  12 * time.Hour,
		},
		Heartbeat: HeartbeatConfig{
			Interval:     30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:          "~/.config/switchboard/switchboard.db",
			RetentionDays: 14,
		},
		Redis: RedisConfig{
			URL:     "redis://127.0.0.1:6379",
			Channel: "switchboard:events",
		},
		Client: ClientConfig{
			URL:         "ws://127.0.0.1:8430/ws",
			Handlers:    2,
			BurstWindow: 100 * time.Millisecond,
			QuietWindow: 5 * time.Second,
			CacheTTL:    10 * time.Second,
		},
	}
}
