package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shotwatch/shotwatch/internal/exclusion"
	"github.com/shotwatch/shotwatch/internal/logging"
)

// WatcherName names the bucket, the data directory and the log handle.
const WatcherName = "shotwatch"

const (
	// DefaultPort is the collector port in production mode.
	DefaultPort = 5600
	// TestingPort is the collector port when server.testing is set.
	TestingPort = 5666

	// MaxPollTime bounds watcher.poll_time, in seconds.
	MaxPollTime = 3600.0
)

// Config holds all application configuration
type Config struct {
	Watcher  WatcherConfig   `mapstructure:"watcher"`
	Capture  CaptureConfig   `mapstructure:"capture"`
	Server   ServerConfig    `mapstructure:"server"`
	Emitter  EmitterConfig   `mapstructure:"emitter"`
	Database DatabaseConfig  `mapstructure:"database"`
	Logging  logging.Options `mapstructure:"logging"`
	Daemon   DaemonConfig    `mapstructure:"daemon"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// WatcherConfig controls the sampling loop.
type WatcherConfig struct {
	PollTime       float64  `mapstructure:"poll_time"`      // seconds between ticks
	ExcludeTitle   bool     `mapstructure:"exclude_title"`  // redact every title
	ExcludeTitles  []string `mapstructure:"exclude_titles"` // case-insensitive patterns
	Strategy       string   `mapstructure:"strategy"`
	OnWindowChange bool     `mapstructure:"on_window_change"`
	ExitWithParent bool     `mapstructure:"exit_with_parent"`
}

// CaptureConfig controls where and how screenshots are written.
type CaptureConfig struct {
	NameTemplate string `mapstructure:"name_template"`
	StorageDir   string `mapstructure:"storage_dir"`
	Backend      string `mapstructure:"backend"`
}

// ServerConfig locates the collection service.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Testing bool   `mapstructure:"testing"`
}

// EmitterConfig selects and tunes the event emitter.
type EmitterConfig struct {
	Mode           string        `mapstructure:"mode"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
	StartTimeout   time.Duration `mapstructure:"start_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"`
}

// MetricsConfig enables the watcher's own /metrics listener when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	data := DataDir()
	return &Config{
		Watcher: WatcherConfig{
			PollTime:       20.0,
			ExcludeTitle:   false,
			ExcludeTitles:  []string{},
			Strategy:       "auto",
			OnWindowChange: false,
			ExitWithParent: true,
		},
		Capture: CaptureConfig{
			NameTemplate: "monitor_{mon}_{date}.png",
			StorageDir:   filepath.Join(data, "screenshots"),
			Backend:      "auto",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
		},
		Emitter: EmitterConfig{
			Mode:           "remote",
			CommitInterval: 10 * time.Second,
			StartTimeout:   10 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(data, WatcherName+".db"),
		},
		Logging: logging.Options{
			Level: logging.LevelInfo,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/%s-%d.pid", WatcherName, os.Getuid()),
		},
	}
}

// DataDir returns $XDG_DATA_HOME/shotwatch, falling back to ~/.local/share.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, WatcherName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + WatcherName
	}
	return filepath.Join(home, ".local", "share", WatcherName)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, WatcherName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + WatcherName
	}
	return filepath.Join(home, ".config", WatcherName)
}

// ConfigFile returns the default path of the TOML config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), WatcherName+".toml")
}

// PollInterval returns watcher.poll_time as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.PollTime * float64(time.Second))
}

// Policy compiles the title exclusion settings.
func (c *Config) Policy() (*exclusion.Policy, error) {
	policy, err := exclusion.Compile(c.Watcher.ExcludeTitle, c.Watcher.ExcludeTitles)
	if err != nil {
		return nil, ConfigurationError{{Field: "watcher.exclude_titles", Value: c.Watcher.ExcludeTitles, Message: err.Error()}}
	}
	return policy, nil
}

// ServerURL is the base URL of the collection service.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// String returns a string representation of the config
func (c *Config) String() string {
	titles := "none"
	if len(c.Watcher.ExcludeTitles) > 0 {
		titles = strings.Join(c.Watcher.ExcludeTitles, ", ")
	}
	return fmt.Sprintf(`Configuration:
  Watcher:
    Poll Time: %v
    Exclude All Titles: %v
    Exclude Titles: %s
    Strategy: %s
    Exit With Parent: %v
  Capture:
    Name Template: %s
    Storage Dir: %s
    Backend: %s
  Server:
    URL: %s
    Testing: %v
  Emitter:
    Mode: %s
    Commit Interval: %v
  Database:
    Path: %s
  Logging:
    Level: %s
    File: %s
  Daemon:
    PID File: %s`,
		c.PollInterval(),
		c.Watcher.ExcludeTitle,
		titles,
		c.Watcher.Strategy,
		c.Watcher.ExitWithParent,
		c.Capture.NameTemplate,
		c.Capture.StorageDir,
		c.Capture.Backend,
		c.ServerURL(),
		c.Server.Testing,
		c.Emitter.Mode,
		c.Emitter.CommitInterval,
		c.Database.Path,
		c.Logging.Level,
		c.Logging.File,
		c.Daemon.PIDFile,
	)
}
