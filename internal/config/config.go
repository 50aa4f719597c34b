// Package config loads edebt settings.
//
// Settings come, in increasing precedence, from defaults, an edebt.toml (or
// edebt.yaml) file in the data directory or named by --config, EDEBT_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the data directory.
const FileName = "edebt"

// EnvPrefix prefixes environment overrides, e.g. EDEBT_REMOTE_URL.
const EnvPrefix = "EDEBT"

// Config holds every edebt setting.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// RemoteConfig locates the remote service.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the orchestrator and the upload.
type SyncConfig struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	PeriodicInterval time.Duration `mapstructure:"periodic_interval"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	InitialDelay     time.Duration `mapstructure:"initial_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BatchOrders      bool          `mapstructure:"batch_orders"`
	WakeDir          string        `mapstructure:"wake_dir"`
}

// LogConfig selects where logs go. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DashboardConfig configures the operator dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultDataDir returns ~/.edebt, or .edebt when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".edebt"
	}
	return filepath.Join(home, ".edebt")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Remote: RemoteConfig{
			URL:     "http://localhost:5000",
			Timeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			Debounce:         5 * time.Second,
			PeriodicInterval: 60 * time.Second,
			HealthInterval:   15 * time.Second,
			InitialDelay:     2 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Port: 8080},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.periodic_interval", d.Sync.PeriodicInterval)
	v.SetDefault("sync.health_interval", d.Sync.HealthInterval)
	v.SetDefault("sync.initial_delay", d.Sync.InitialDelay)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.batch_orders", d.Sync.BatchOrders)
	v.SetDefault("sync.wake_dir", d.Sync.WakeDir)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"data-dir": "data_dir",
	"remote":   "remote.url",
	"token":    "remote.token",
	"timeout":  "remote.timeout",
	"port":     "dashboard.port",
	"batch":    "sync.batch_orders",
	"log-file": "log.file",
}

// Load reads the configuration. path names a config file; when empty,
// edebt.toml or edebt.yaml in the data directory is used if present. flags
// may be nil; flags it contains override every other source when set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote.url must be an http(s) URL (got %q)", c.Remote.URL)
		}
	}

	durations := []struct {
		key string
		d   time.Duration
	}{
		{"remote.timeout", c.Remote.Timeout},
		{"sync.debounce", c.Sync.Debounce},
		{"sync.periodic_interval", c.Sync.PeriodicInterval},
		{"sync.health_interval", c.Sync.HealthInterval},
		{"sync.initial_delay", c.Sync.InitialDelay},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", d.key, d.d)
		}
	}

	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must not be negative (got %d)", c.Sync.MaxAttempts)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	return nil
}

// WakeDir returns the wake directory, defaulting to "wake" in the data dir.
func (c *Config) WakeDir() string {
	if c.Sync.WakeDir != "" {
		return c.Sync.WakeDir
	}
	return filepath.Join(c.DataDir, "wake")
}
