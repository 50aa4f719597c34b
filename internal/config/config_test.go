package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EDEBT_DATA_DIR", dir)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.Sync.Debounce != 5*time.Second || cfg.Sync.PeriodicInterval != time.Minute {
		t.Errorf("sync intervals = %v/%v, want 5s/1m", cfg.Sync.Debounce, cfg.Sync.PeriodicInterval)
	}
	if cfg.Remote.Timeout != 5*time.Second {
		t.Errorf("remote timeout = %v, want 5s", cfg.Remote.Timeout)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if got, want := cfg.WakeDir(), filepath.Join(dir, "wake"); got != want {
		t.Errorf("WakeDir() = %q, want %q", got, want)
	}
}

func TestLoad_FileInDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EDEBT_DATA_DIR", dir)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Remote.URL = "https://api.example.com"
	cfg.Sync.Debounce = 10 * time.Second
	cfg.Sync.MaxAttempts = 7
	cfg.Sync.BatchOrders = true
	cfg.Dashboard.Port = 9090

	path := filepath.Join(dir, FileName+".toml")
	if err := WriteFile(path, cfg, false); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := WriteFile(path, cfg, false); err == nil {
		t.Error("WriteFile() over an existing file should fail without force")
	}

	got, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got.File != path {
		t.Errorf("File = %q, want %q", got.File, path)
	}
	if got.Remote.URL != cfg.Remote.URL {
		t.Errorf("Remote.URL = %q, want %q", got.Remote.URL, cfg.Remote.URL)
	}
	if got.Sync.Debounce != 10*time.Second {
		t.Errorf("Sync.Debounce = %v, want 10s", got.Sync.Debounce)
	}
	if got.Sync.MaxAttempts != 7 || !got.Sync.BatchOrders {
		t.Errorf("Sync = %+v", got.Sync)
	}
	if got.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", got.Dashboard.Port)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := "data_dir: " + dir + "\nremote:\n  url: http://from-file:5000\n  timeout: 3s\nsync:\n  max_attempts: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("EDEBT_SYNC_MAX_ATTEMPTS", "4")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("remote", "", "")
	flags.String("data-dir", "", "")
	if err := flags.Parse([]string{"--remote", "http://from-flag:5000"}); err != nil {
		t.Fatalf("flags.Parse() failed: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Remote.URL != "http://from-flag:5000" {
		t.Errorf("Remote.URL = %q, want the flag value", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s from file", cfg.Remote.Timeout)
	}
	if cfg.Sync.MaxAttempts != 4 {
		t.Errorf("Sync.MaxAttempts = %d, want 4 from env", cfg.Sync.MaxAttempts)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q from file (flag unset)", cfg.DataDir, dir)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil); err == nil {
		t.Error("Load() with a missing --config file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad url", func(c *Config) { c.Remote.URL = "ftp://x" }, "remote.url"},
		{"no host", func(c *Config) { c.Remote.URL = "http://" }, "remote.url"},
		{"empty url allowed", func(c *Config) { c.Remote.URL = "" }, ""},
		{"zero debounce", func(c *Config) { c.Sync.Debounce = 0 }, "sync.debounce"},
		{"negative periodic", func(c *Config) { c.Sync.PeriodicInterval = -time.Second }, "sync.periodic_interval"},
		{"zero timeout", func(c *Config) { c.Remote.Timeout = 0 }, "remote.timeout"},
		{"negative attempts", func(c *Config) { c.Sync.MaxAttempts = -1 }, "max_attempts"},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
		{"negative rotation", func(c *Config) { c.Log.MaxBackups = -1 }, "rotation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = "/tmp/edebt"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestLogs_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "edebt.log")
	logs := NewLogs(LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})

	logs.NewLogger("[sync] ").Printf("hello %d", 1)
	logs.NewLogger("[daemon] ").Println("world")
	if err := logs.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	for _, want := range []string{"[sync] ", "hello 1", "[daemon] ", "world"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}
}

func TestLogs_Stderr(t *testing.T) {
	logs := NewLogs(LogConfig{})
	if logs.NewLogger("[x] ").Writer() != os.Stderr {
		t.Error("logger without a file should write to stderr")
	}
	if err := logs.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
