package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk layout. Durations are written as strings such
// as "5s" so the file stays readable.
type fileConfig struct {
	DataDir   string        `toml:"data_dir"`
	Remote    fileRemote    `toml:"remote"`
	Sync      fileSync      `toml:"sync"`
	Log       fileLog       `toml:"log"`
	Dashboard fileDashboard `toml:"dashboard"`
}

type fileRemote struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	Timeout string `toml:"timeout"`
}

type fileSync struct {
	Debounce         string `toml:"debounce"`
	PeriodicInterval string `toml:"periodic_interval"`
	HealthInterval   string `toml:"health_interval"`
	InitialDelay     string `toml:"initial_delay"`
	MaxAttempts      int    `toml:"max_attempts"`
	BatchOrders      bool   `toml:"batch_orders"`
	WakeDir          string `toml:"wake_dir,omitempty"`
}

type fileLog struct {
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type fileDashboard struct {
	Port int `toml:"port"`
}

func toFile(c *Config) fileConfig {
	return fileConfig{
		DataDir: c.DataDir,
		Remote: fileRemote{
			URL:     c.Remote.URL,
			Token:   c.Remote.Token,
			Timeout: c.Remote.Timeout.String(),
		},
		Sync: fileSync{
			Debounce:         c.Sync.Debounce.String(),
			PeriodicInterval: c.Sync.PeriodicInterval.String(),
			HealthInterval:   c.Sync.HealthInterval.String(),
			InitialDelay:     c.Sync.InitialDelay.String(),
			MaxAttempts:      c.Sync.MaxAttempts,
			BatchOrders:      c.Sync.BatchOrders,
			WakeDir:          c.Sync.WakeDir,
		},
		Log: fileLog{
			File:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
		},
		Dashboard: fileDashboard{Port: c.Dashboard.Port},
	}
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(toFile(c))
}

// WriteFile writes c to path as TOML. It refuses to overwrite an existing
// file unless force is set.
func WriteFile(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "# edebt configuration\n# Environment variables EDEBT_<SECTION>_<KEY> override these values.\n\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(toFile(c)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}
