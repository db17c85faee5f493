// Package config handles arcbox-desktop configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logs    LogsConfig    `yaml:"logs"`
	Logging LoggingConfig `yaml:"logging"`
	UI      UIConfig      `yaml:"ui"`
}

// DaemonConfig describes where the runtime daemon lives and how it is
// supervised.
type DaemonConfig struct {
	Binary     string `yaml:"binary"`      // name searched for during discovery
	BinaryPath string `yaml:"binary_path"` // skips discovery when set
	DataDir    string `yaml:"data_dir"`

	// Empty socket paths are derived from DataDir.
	HealthSocket string `yaml:"health_socket"`
	RPCSocket    string `yaml:"rpc_socket"`

	StartupTimeout time.Duration `yaml:"startup_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	HealthProbe    string        `yaml:"health_probe"` // "raw" or "engine"

	Autostart   bool `yaml:"autostart"`
	AutoConnect bool `yaml:"auto_connect"`
}

// BridgeConfig sizes the background worker pool.
type BridgeConfig struct {
	Workers int `yaml:"workers"`
}

// LogsConfig controls container log streaming.
type LogsConfig struct {
	Tail      int `yaml:"tail"`
	MaxLines  int `yaml:"max_lines"`
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig controls the desktop client's own logs.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	SentryDSN string `yaml:"sentry_dsn"`
	Env       string `yaml:"env"`
}

// UIConfig defines TUI appearance.
type UIConfig struct {
	Theme           string        `yaml:"theme"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Probe kinds accepted by daemon.health_probe.
const (
	ProbeRaw    = "raw"
	ProbeEngine = "engine"
)

// DefaultConfig returns a config with the defaults the desktop app ships with.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".arcbox")

	return &Config{
		Daemon: DaemonConfig{
			Binary:         "arcbox",
			DataDir:        dataDir,
			StartupTimeout: 30 * time.Second,
			PingInterval:   200 * time.Millisecond,
			ProbeTimeout:   2 * time.Second,
			HealthProbe:    ProbeRaw,
			Autostart:      true,
			AutoConnect:    true,
		},
		Bridge: BridgeConfig{Workers: 2},
		Logs: LogsConfig{
			Tail:      100,
			MaxLines:  10000,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "desktop.log"),
			Env:   "production",
		},
		UI: UIConfig{
			Theme:           "tokyo-night",
			RefreshInterval: 5 * time.Second,
		},
	}
}

// Load reads the config file at DefaultConfigPath. A missing file yields the
// defaults.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads the config file at path on top of the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg.resolve()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.expandEnvVars()
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the configuration file path. ARCBOX_DESKTOP_CONFIG
// overrides it.
func DefaultConfigPath() string {
	if p := os.Getenv("ARCBOX_DESKTOP_CONFIG"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config/arcbox-desktop/config.yaml")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	d := c.Daemon
	if d.Binary == "" && d.BinaryPath == "" {
		return errors.New("daemon.binary or daemon.binary_path is required")
	}
	if d.DataDir == "" {
		return errors.New("daemon.data_dir is required")
	}
	if d.StartupTimeout <= 0 {
		return fmt.Errorf("daemon.startup_timeout must be positive, got %s", d.StartupTimeout)
	}
	if d.PingInterval <= 0 {
		return fmt.Errorf("daemon.ping_interval must be positive, got %s", d.PingInterval)
	}
	if d.PingInterval > d.StartupTimeout {
		return fmt.Errorf("daemon.ping_interval (%s) exceeds startup_timeout (%s)", d.PingInterval, d.StartupTimeout)
	}
	if d.ProbeTimeout <= 0 {
		return fmt.Errorf("daemon.probe_timeout must be positive, got %s", d.ProbeTimeout)
	}
	switch d.HealthProbe {
	case ProbeRaw, ProbeEngine:
	default:
		return fmt.Errorf("daemon.health_probe: unknown probe %q", d.HealthProbe)
	}
	if c.Bridge.Workers < 0 {
		return fmt.Errorf("bridge.workers must not be negative, got %d", c.Bridge.Workers)
	}
	if c.Logs.MaxLines <= 0 {
		return fmt.Errorf("logs.max_lines must be positive, got %d", c.Logs.MaxLines)
	}
	if c.Logs.QueueSize <= 0 {
		return fmt.Errorf("logs.queue_size must be positive, got %d", c.Logs.QueueSize)
	}
	if c.Logs.Tail < 0 {
		return fmt.Errorf("logs.tail must not be negative, got %d", c.Logs.Tail)
	}
	return nil
}

func (c *Config) expandEnvVars() {
	c.Logging.SentryDSN = os.ExpandEnv(c.Logging.SentryDSN)
	c.Daemon.DataDir = os.ExpandEnv(c.Daemon.DataDir)
	c.Daemon.BinaryPath = os.ExpandEnv(c.Daemon.BinaryPath)
}

// resolve expands ~ and fills socket paths left empty.
func (c *Config) resolve() {
	c.Daemon.DataDir = expandHome(c.Daemon.DataDir)
	c.Daemon.BinaryPath = expandHome(c.Daemon.BinaryPath)
	c.Daemon.HealthSocket = expandHome(c.Daemon.HealthSocket)
	c.Daemon.RPCSocket = expandHome(c.Daemon.RPCSocket)
	c.Logging.File = expandHome(c.Logging.File)

	if c.Daemon.HealthSocket == "" {
		c.Daemon.HealthSocket = filepath.Join(c.Daemon.DataDir, "docker.sock")
	}
	if c.Daemon.RPCSocket == "" {
		c.Daemon.RPCSocket = filepath.Join(c.Daemon.DataDir, "arcbox.sock")
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
