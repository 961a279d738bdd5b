// Package config loads application settings from a YAML file via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the local document store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SyncConfig holds the timing knobs of the synchronization engine.
type SyncConfig struct {
	// Debounce is how long a low-importance change waits before it is written.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// PriorityDelay replaces Debounce for moves and important card edits.
	PriorityDelay time.Duration `mapstructure:"priority_delay" yaml:"priority_delay"`

	// Throttle is the minimum spacing between two unforced writes.
	Throttle time.Duration `mapstructure:"throttle" yaml:"throttle"`

	// IgnoreWindow is how long inbound snapshots are discarded after a
	// local write or move.
	IgnoreWindow time.Duration `mapstructure:"ignore_window" yaml:"ignore_window"`

	// RecentMoveWindow is how fresh a board's last-move stamp must be to
	// escalate the next write.
	RecentMoveWindow time.Duration `mapstructure:"recent_move_window" yaml:"recent_move_window"`

	// WatchInterval is how often the SQLite store polls for writes made by
	// other processes.
	WatchInterval time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`

	// RefreshInterval is the forced-refresh period for shared boards.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
}

// UserConfig identifies the local user to the board.
type UserConfig struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Email string `mapstructure:"email" yaml:"email"`
	Name  string `mapstructure:"name" yaml:"name"`
}

// RemoteConfig points the client at a relay server. An empty URL means
// the local SQLite store is used directly.
type RemoteConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	User     UserConfig     `mapstructure:"user" yaml:"user"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns ~/.config/kanban/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "kanban")
}

// DefaultSync returns the engine timings used when nothing is configured.
func DefaultSync() SyncConfig {
	return SyncConfig{
		Debounce:         2 * time.Second,
		PriorityDelay:    50 * time.Millisecond,
		Throttle:         5 * time.Second,
		IgnoreWindow:     3 * time.Second,
		RecentMoveWindow: 2 * time.Second,
		WatchInterval:    time.Second,
		RefreshInterval:  30 * time.Second,
	}
}

// Default returns a sensible default configuration.
func Default() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: filepath.Join(configDir(), "boards.db")},
		Sync:     DefaultSync(),
		Relay:    RelayConfig{Addr: ":8484"},
		Log:      LogConfig{Level: "info", File: filepath.Join(configDir(), "kanban.log")},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("sync.debounce", def.Sync.Debounce)
	v.SetDefault("sync.priority_delay", def.Sync.PriorityDelay)
	v.SetDefault("sync.throttle", def.Sync.Throttle)
	v.SetDefault("sync.ignore_window", def.Sync.IgnoreWindow)
	v.SetDefault("sync.recent_move_window", def.Sync.RecentMoveWindow)
	v.SetDefault("sync.watch_interval", def.Sync.WatchInterval)
	v.SetDefault("sync.refresh_interval", def.Sync.RefreshInterval)
	v.SetDefault("user.id", "")
	v.SetDefault("user.email", "")
	v.SetDefault("user.name", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("relay.addr", def.Relay.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", def.Log.File)
}

// LoadConfig reads configuration from the YAML file at path. A missing
// file yields the default configuration. Environment variables prefixed
// with KANBAN_ override file values (KANBAN_USER_EMAIL for user.email).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("kanban")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Sync = normalizeSync(cfg.Sync)
	return cfg, nil
}

// normalizeSync replaces non-positive durations with their defaults.
func normalizeSync(s SyncConfig) SyncConfig {
	def := DefaultSync()
	fix := func(d *time.Duration, fallback time.Duration) {
		if *d <= 0 {
			*d = fallback
		}
	}
	fix(&s.Debounce, def.Debounce)
	fix(&s.PriorityDelay, def.PriorityDelay)
	fix(&s.Throttle, def.Throttle)
	fix(&s.IgnoreWindow, def.IgnoreWindow)
	fix(&s.RecentMoveWindow, def.RecentMoveWindow)
	fix(&s.WatchInterval, def.WatchInterval)
	fix(&s.RefreshInterval, def.RefreshInterval)
	return s
}

// SaveConfig writes cfg to a YAML file at path, creating parent
// directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database.path", cfg.Database.Path)
	v.Set("sync.debounce", cfg.Sync.Debounce.String())
	v.Set("sync.priority_delay", cfg.Sync.PriorityDelay.String())
	v.Set("sync.throttle", cfg.Sync.Throttle.String())
	v.Set("sync.ignore_window", cfg.Sync.IgnoreWindow.String())
	v.Set("sync.recent_move_window", cfg.Sync.RecentMoveWindow.String())
	v.Set("sync.watch_interval", cfg.Sync.WatchInterval.String())
	v.Set("sync.refresh_interval", cfg.Sync.RefreshInterval.String())
	v.Set("user", cfg.User)
	v.Set("remote", cfg.Remote)
	v.Set("relay", cfg.Relay)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
