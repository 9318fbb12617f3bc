package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/switchboard/switchboard.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "switchboard", "switchboard.yaml"))
	}

	paths = append(paths, "switchboard.yaml")

	if envPath := os.Getenv("SWITCHBOARD_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/switchboard/switchboard.yaml < ~/.config/switchboard/switchboard.yaml < ./switchboard.yaml < $SWITCHBOARD_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if secret := os.Getenv("SWITCHBOARD_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	if url := os.Getenv("SWITCHBOARD_REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if token := os.Getenv("SWITCHBOARD_TOKEN"); token != "" {
		cfg.Client.Token = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Heartbeat.Interval < time.Second {
		return fmt.Errorf("heartbeat.interval must be at least 1s, got %s", cfg.Heartbeat.Interval)
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when redis.enabled is true")
		}
		if cfg.Redis.Channel == "" {
			return fmt.Errorf("redis.channel is required when redis.enabled is true")
		}
	}

	for unit, org := range cfg.Hierarchy.Units {
		if unit == "" || org == "" {
			return fmt.Errorf("hierarchy.units entries need both a unit and an organization (got %q: %q)", unit, org)
		}
	}

	if cfg.Client.BurstWindow > cfg.Client.QuietWindow {
		return fmt.Errorf("client.burst_window (%s) must not exceed client.quiet_window (%s)",
			cfg.Client.BurstWindow, cfg.Client.QuietWindow)
	}
	if cfg.Client.CacheTTL < cfg.Client.QuietWindow {
		return fmt.Errorf("client.cache_ttl (%s) must cover client.quiet_window (%s)",
			cfg.Client.CacheTTL, cfg.Client.QuietWindow)
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.SecretDir = ExpandHome(cfg.Auth.SecretDir)

	return nil
}
