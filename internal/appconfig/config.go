// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"tailnym/internal/util"
)

// ProbeConfig controls username autodetection.
type ProbeConfig struct {
	// Usernames are tried in order; the first that authenticates wins and the
	// first is also the fallback when every probe fails.
	Usernames      []string `yaml:"usernames"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// RefreshConfig controls peer reconciliation.
type RefreshConfig struct {
	Workers int `yaml:"workers"`
	// StatusCommand produces the peer snapshot JSON on stdout.
	StatusCommand []string `yaml:"status_command"`
}

// Config holds application-level configuration.
type Config struct {
	DefaultPort int           `yaml:"default_port"`
	Probe       ProbeConfig   `yaml:"probe"`
	Refresh     RefreshConfig `yaml:"refresh"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DefaultPort: 22,
		Probe: ProbeConfig{
			Usernames:      []string{"ubuntu", "ec2-user", "root", "admin", "debian"},
			TimeoutSeconds: int(util.DefaultProbeTimeout / time.Second),
		},
		Refresh: RefreshConfig{
			Workers:       defaultWorkers(),
			StatusCommand: []string{"tailscale", "status", "--json"},
		},
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > util.MaxRefreshWorkers {
		n = util.MaxRefreshWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/tailnym.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tailnym"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "tailnym"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func normalize(cfg Config) Config {
	def := Default()
	if util.ValidatePort(cfg.DefaultPort) != nil {
		cfg.DefaultPort = def.DefaultPort
	}
	if len(cfg.Probe.Usernames) == 0 {
		cfg.Probe.Usernames = def.Probe.Usernames
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		cfg.Probe.TimeoutSeconds = def.Probe.TimeoutSeconds
	}
	if cfg.Refresh.Workers <= 0 || cfg.Refresh.Workers > util.MaxRefreshWorkers {
		cfg.Refresh.Workers = def.Refresh.Workers
	}
	if len(cfg.Refresh.StatusCommand) == 0 {
		cfg.Refresh.StatusCommand = def.Refresh.StatusCommand
	}
	return cfg
}

// ProbeTimeout returns the probe timeout as a duration.
func (c Config) ProbeTimeout() time.Duration {
	if c.Probe.TimeoutSeconds <= 0 {
		return util.DefaultProbeTimeout
	}
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}
